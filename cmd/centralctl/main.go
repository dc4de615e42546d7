package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/padlink/internal/central"
	"github.com/danmuck/padlink/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to central config (toml)")
	appID := flag.String("app", "", "application identifier (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := central.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "centralctl: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *appID != "" {
		cfg.AppID = *appID
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	svc, err := central.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "centralctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "centralctl: %v\n", err)
		os.Exit(1)
	}
}
