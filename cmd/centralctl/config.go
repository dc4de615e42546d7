package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/padlink/internal/central"
)

type fileConfig struct {
	AppID          string `toml:"app_id"`
	Name           string `toml:"name"`
	ListenAddr     string `toml:"listen_addr"`
	LoggingMode    bool   `toml:"logging_mode"`
	MatchDeadline  string `toml:"match_deadline"`
	TransmitBuffer int    `toml:"transmit_buffer"`
}

func loadServiceConfig(path string) (central.ServiceConfig, error) {
	cfg := central.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return central.ServiceConfig{}, fmt.Errorf("load central config: %w", err)
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
	if meta.IsDefined("logging_mode") {
		cfg.LoggingMode = raw.LoggingMode
	}
	if meta.IsDefined("match_deadline") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MatchDeadline))
		if err != nil {
			return central.ServiceConfig{}, fmt.Errorf("parse match_deadline: %w", err)
		}
		cfg.MatchDeadline = d
	}
	if meta.IsDefined("transmit_buffer") {
		cfg.TransmitBuffer = raw.TransmitBuffer
	}

	return cfg, nil
}
