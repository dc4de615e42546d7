package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/padlink/internal/bridge"
	"github.com/danmuck/padlink/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to bridge config (toml)")
	appID := flag.String("app", "", "application identifier (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	enhanced := flag.Bool("enhanced", false, "run as enhancement bridge (single downstream)")
	relayOnly := flag.Bool("relay-only", false, "forward frames upstream without decoding payloads")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg := bridge.DefaultServiceConfig()
	if *configPath != "" {
		loaded, err := loadServiceConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
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
	if *enhanced {
		cfg.Enhanced = true
	}
	if *relayOnly {
		cfg.RelayOnly = true
	}

	svc, err := bridge.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}
