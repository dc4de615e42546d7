package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/peripheral"
)

type fileConfig struct {
	AppID          string `toml:"app_id"`
	Name           string `toml:"name"`
	StoreDir       string `toml:"store_dir"`
	TargetBridge   bool   `toml:"target_bridge"`
	LoggingMode    bool   `toml:"logging_mode"`
	MatchDeadline  string `toml:"match_deadline"`
	TransmitBuffer int    `toml:"transmit_buffer"`
	Vendor         string `toml:"vendor"`
	Profile        string `toml:"profile"`
	Controller     string `toml:"controller"`
	SupportsMotion bool   `toml:"supports_motion"`
}

func loadServiceConfig(path string) (peripheral.ServiceConfig, error) {
	cfg := peripheral.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return peripheral.ServiceConfig{}, fmt.Errorf("load pad config: %w", err)
	}

	cfg.AppID = strings.TrimSpace(raw.AppID)

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("store_dir") {
		cfg.StoreDir = strings.TrimSpace(raw.StoreDir)
	}
	if meta.IsDefined("target_bridge") {
		cfg.TargetBridge = raw.TargetBridge
	}
	if meta.IsDefined("logging_mode") {
		cfg.LoggingMode = raw.LoggingMode
	}
	if meta.IsDefined("match_deadline") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MatchDeadline))
		if err != nil {
			return peripheral.ServiceConfig{}, fmt.Errorf("parse match_deadline: %w", err)
		}
		cfg.MatchDeadline = d
	}
	if meta.IsDefined("transmit_buffer") {
		cfg.TransmitBuffer = raw.TransmitBuffer
	}
	if meta.IsDefined("vendor") {
		cfg.Descriptor.VendorName = strings.TrimSpace(raw.Vendor)
	}
	if meta.IsDefined("profile") {
		p, err := parseProfile(raw.Profile)
		if err != nil {
			return peripheral.ServiceConfig{}, err
		}
		cfg.Descriptor.Profile = p
	}
	if meta.IsDefined("controller") {
		k, err := parseController(raw.Controller)
		if err != nil {
			return peripheral.ServiceConfig{}, err
		}
		cfg.Descriptor.Controller = k
	}
	if meta.IsDefined("supports_motion") {
		cfg.Descriptor.SupportsMotion = raw.SupportsMotion
	}

	return cfg, nil
}

func parseProfile(raw string) (device.Profile, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "standard":
		return device.ProfileStandard, nil
	case "extended":
		return device.ProfileExtended, nil
	case "micro":
		return device.ProfileMicro, nil
	default:
		return 0, fmt.Errorf("unknown profile %q", raw)
	}
}

func parseController(raw string) (device.ControllerKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "virtual":
		return device.ControllerVirtual, nil
	case "gamepad":
		return device.ControllerGamepad, nil
	case "remote":
		return device.ControllerRemote, nil
	default:
		return 0, fmt.Errorf("unknown controller %q", raw)
	}
}
