package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `
classifier:
  deterministic: true
telemetry:
  logging:
    level: info
`)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	update := `
classifier:
  deterministic: true
telemetry:
  logging:
    level: debug
`
	if err := os.WriteFile(path, []byte(update), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Telemetry.Logging.Level != "debug" {
			t.Errorf("reloaded level = %q, want debug", cfg.Telemetry.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcher_KeepsOldConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, `
classifier:
  deterministic: true
`)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	go func() {
		_ = w.Watch(ctx, func(cfg *Config) { reloaded <- cfg })
	}()
	time.Sleep(100 * time.Millisecond)

	// An invalid rewrite must not reach the callback.
	if err := os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config delivered: %+v", cfg)
	case <-time.After(time.Second):
	}
}
