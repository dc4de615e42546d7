package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/peripheral"
)

func main() {
	configPath := flag.String("config", "", "path to pad config (toml)")
	appID := flag.String("app", "", "application identifier (overrides config)")
	bridge := flag.Bool("bridge", false, "connect through a bridge instead of a central")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := peripheral.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "padctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *appID != "" {
		cfg.AppID = *appID
	}
	if *bridge {
		cfg.TargetBridge = true
	}

	svc, err := peripheral.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "padctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "padctl: %v\n", err)
		os.Exit(1)
	}
}
