package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signal-forge-core/schedule"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
system: demo
symbol: NQ
mode: async
engine:
  tickInterval: 250ms
  throttle: 1s
levels:
  maxAge: 1h
  roundNumber:
    step: 10
    count: 3
risk:
  limits:
    singleMax: 2
    netMax: 4
  stop:
    maxHolding: 30m
session:
  calendar:
    windows:
      sunday: ["17:00-16:00"]
symbols:
  NQ:
    tickSize: 0.25
    minQty: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.System != "demo" || cfg.Mode != schedule.Asynchronous {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Engine.TickInterval != 250*time.Millisecond || cfg.Levels.MaxAge != time.Hour {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Engine, cfg.Levels.Config)
	}
	if cfg.Levels.RoundNumber.Step != 10 || cfg.Risk.Limits.NetMax != 4 || cfg.Risk.Stop.MaxHolding != 30*time.Minute {
		t.Fatalf("nested values not parsed: %+v", cfg.Risk)
	}
	if len(cfg.Session.Calendar.Windows) != 1 {
		t.Fatalf("calendar windows should replace the default week: %+v", cfg.Session.Calendar.Windows)
	}
	if cfg.Signals.Symbol != "NQ" || cfg.Paper.Symbol != "NQ" {
		t.Fatalf("symbol not propagated: %+v %+v", cfg.Signals, cfg.Paper)
	}
	if cfg.Bus.Capacity != 1024 {
		t.Fatalf("bus capacity default lost: %d", cfg.Bus.Capacity)
	}
	if cfg.Symbols["NQ"].TickSize != 0.25 {
		t.Fatalf("symbol constraints not parsed: %+v", cfg.Symbols)
	}
}

func TestLoadDefaultsCalendar(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "system: demo\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Session.Calendar.Windows) != 5 {
		t.Fatalf("expected weekday calendar, got %+v", cfg.Session.Calendar.Windows)
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "mode: sometimes\n")); err == nil {
		t.Fatalf("expected error for bad mode")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
system: prod
feed:
  enabled: true
  url: ws://localhost:1/signals
`)
	t.Setenv("SFC_MODE", "async")
	t.Setenv("SFC_LOG_LEVEL", "DEBUG")
	t.Setenv("SFC_FEED_URL", "ws://feed.internal/signals")
	t.Setenv("SFC_FEED_TOKEN", "secret")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != schedule.Asynchronous || cfg.Logger.Level != "debug" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Mode, cfg.Logger)
	}
	if cfg.Feed.URL != "ws://feed.internal/signals" || cfg.Feed.Token != "secret" {
		t.Fatalf("feed overrides not applied: %+v", cfg.Feed)
	}
}

func TestValidate(t *testing.T) {
	err := Validate(AppConfig{})
	if err == nil {
		t.Fatalf("expected error for empty config")
	}
	var inv ErrInvalid
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalid, got %T", err)
	}

	cfg := Default()
	cfg.Session.AlwaysOpen = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Signals.ChildKey = cfg.Signals.ParentKey
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for identical signal keys")
	}

	cfg = Default()
	cfg.Session.AlwaysOpen = true
	cfg.Feed.Enabled = true
	cfg.Feed.URL = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for feed without url")
	}
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if cfg.Risk.Stop.Multiplier != 50 || cfg.Paper.Multiplier != 50 {
		t.Fatalf("multiplier not decoded: stop=%v paper=%v", cfg.Risk.Stop.Multiplier, cfg.Paper.Multiplier)
	}
	if cfg.Filters.Volatility.Cooldown != 5*time.Minute {
		t.Fatalf("volatility cooldown = %v", cfg.Filters.Volatility.Cooldown)
	}
	if got := cfg.Symbols["ES"].TickSize; got != 0.25 {
		t.Fatalf("ES tickSize = %v", got)
	}
	if cfg.Levels.Proximity.SignalKey != cfg.Signals.ParentKey {
		t.Fatalf("proximity key %q should follow parent key %q", cfg.Levels.Proximity.SignalKey, cfg.Signals.ParentKey)
	}
	if cfg.Alerts.HealthInterval != 30*time.Second {
		t.Fatalf("alerts.healthInterval = %v", cfg.Alerts.HealthInterval)
	}
	if len(cfg.Session.Calendar.Windows) != 5 {
		t.Fatalf("calendar windows = %v", cfg.Session.Calendar.Windows)
	}
}
