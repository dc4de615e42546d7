package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/padlink/internal/bridge"
)

type fileConfig struct {
	AppID          string `toml:"app_id"`
	Name           string `toml:"name"`
	ListenAddr     string `toml:"listen_addr"`
	Enhanced       bool   `toml:"enhanced"`
	RelayOnly      bool   `toml:"relay_only"`
	LoggingMode    bool   `toml:"logging_mode"`
	MatchDeadline  string `toml:"match_deadline"`
	TransmitBuffer int    `toml:"transmit_buffer"`
}

func loadServiceConfig(path string) (bridge.ServiceConfig, error) {
	cfg := bridge.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bridge.ServiceConfig{}, fmt.Errorf("load bridge config: %w", err)
	}

	cfg.AppID = strings.TrimSpace(raw.AppID)

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("enhanced") {
		cfg.Enhanced = raw.Enhanced
	}
	if meta.IsDefined("relay_only") {
		cfg.RelayOnly = raw.RelayOnly
	}
	if meta.IsDefined("logging_mode") {
		cfg.LoggingMode = raw.LoggingMode
	}
	if meta.IsDefined("match_deadline") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MatchDeadline))
		if err != nil {
			return bridge.ServiceConfig{}, fmt.Errorf("parse match_deadline: %w", err)
		}
		cfg.MatchDeadline = d
	}
	if meta.IsDefined("transmit_buffer") {
		cfg.TransmitBuffer = raw.TransmitBuffer
	}

	return cfg, nil
}
