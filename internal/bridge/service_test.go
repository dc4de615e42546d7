package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/padlink/internal/central"
	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/discovery"
	"github.com/danmuck/padlink/internal/peripheral"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/testutil/testlog"
	"github.com/danmuck/padlink/internal/transport"
)

func TestNewServiceRequiresAppID(t *testing.T) {
	testlog.Start(t)
	if _, err := NewService(ServiceConfig{}); !errors.Is(err, ErrAppIDRequired) {
		t.Fatalf("expected ErrAppIDRequired, got %v", err)
	}
}

func TestNewServicePicksRole(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultServiceConfig()
	cfg.AppID = "padlink"
	plain, err := NewService(cfg)
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	if plain.State().Role() != role.Bridge {
		t.Fatalf("plain role = %v", plain.State().Role())
	}

	cfg.Enhanced = true
	enhanced, err := NewService(cfg)
	if err != nil {
		t.Fatalf("enhanced: %v", err)
	}
	if enhanced.State().Role() != role.EnhancementBridge {
		t.Fatalf("enhanced role = %v", enhanced.State().Role())
	}
}

func hubDirectory(t *testing.T, hub *discovery.MemoryHub, r role.Role) discovery.Directory {
	t.Helper()
	st, err := role.Init(r, "padlink")
	if err != nil {
		t.Fatalf("init state: %v", err)
	}
	return hub.Directory(st, "127.0.0.1")
}

// Full relay path: peripheral dials the bridge, the bridge opens an
// upstream to the central, and input payloads arrive at the central
// handler untouched.
func TestBridgeRelaysPeripheralToCentral(t *testing.T) {
	testlog.Start(t)

	hub := discovery.NewMemoryHub()
	received := make(chan []byte, 8)

	centralCfg := central.DefaultServiceConfig()
	centralCfg.AppID = "padlink"
	centralCfg.ListenAddr = "127.0.0.1:0"
	centralCfg.Directory = hubDirectory(t, hub, role.Central)
	centralCfg.Handler = func(ch transport.Channel, payload []byte) error {
		received <- append([]byte(nil), payload...)
		return nil
	}
	centralSvc, err := central.NewService(centralCfg)
	if err != nil {
		t.Fatalf("central: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go func() {
		if err := centralSvc.Run(ctx); err != nil {
			t.Errorf("central run: %v", err)
		}
	}()

	bridgeCfg := DefaultServiceConfig()
	bridgeCfg.AppID = "padlink"
	bridgeCfg.ListenAddr = "127.0.0.1:0"
	bridgeCfg.RelayOnly = true
	bridgeCfg.Directory = hubDirectory(t, hub, role.Bridge)
	bridgeSvc, err := NewService(bridgeCfg)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	go func() {
		if err := bridgeSvc.Run(ctx); err != nil {
			t.Errorf("bridge run: %v", err)
		}
	}()

	padCfg := peripheral.DefaultServiceConfig()
	padCfg.AppID = "padlink"
	padCfg.TargetBridge = true
	padCfg.Directory = hubDirectory(t, hub, role.Peripheral)
	padCfg.Store = device.NewMemoryStore()
	padCfg.Host = device.StaticHostIdentity("relay-pad")
	pad, err := peripheral.NewService(padCfg)
	if err != nil {
		t.Fatalf("peripheral: %v", err)
	}
	go func() {
		if err := pad.Run(ctx); err != nil {
			t.Errorf("peripheral run: %v", err)
		}
	}()

	for {
		if s := pad.Session(); s != nil && s.State() == sessions.Active {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("peripheral never connected to the bridge")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// The upstream session comes up lazily on the first attach; retry the
	// send until the relay path is complete.
	deadline := time.Now().Add(10 * time.Second)
	for {
		if err := pad.SendControl([]byte("dpad:up")); err != nil {
			t.Fatalf("send control: %v", err)
		}
		select {
		case payload := <-received:
			if string(payload) != "dpad:up" {
				t.Fatalf("relayed payload = %q", payload)
			}
			return
		case <-time.After(200 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatalf("input never reached the central through the bridge")
			}
		}
	}
}
