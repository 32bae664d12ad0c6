package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"signal-forge-core/bus"
	"signal-forge-core/feed"
	"signal-forge-core/filter"
	"signal-forge-core/infrastructure/alert"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/level"
	"signal-forge-core/order"
	"signal-forge-core/params"
	"signal-forge-core/risk"
	"signal-forge-core/schedule"
	"signal-forge-core/session"
	"signal-forge-core/signal"
	"signal-forge-core/venue"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	System   string                             `yaml:"system"`
	Symbol   string                             `yaml:"symbol"`
	Account  string                             `yaml:"account"`
	Mode     schedule.Mode                      `yaml:"mode"`
	Engine   EngineConfig                       `yaml:"engine"`
	Bus      bus.Config                         `yaml:"bus"`
	Levels   LevelsConfig                       `yaml:"levels"`
	Signals  signal.PairConfig                  `yaml:"signals"`
	Executor order.ExecutorConfig               `yaml:"executor"`
	Risk     RiskConfig                         `yaml:"risk"`
	Filters  FiltersConfig                      `yaml:"filters"`
	Session  SessionConfig                      `yaml:"session"`
	Params   ParamsConfig                       `yaml:"params"`
	Feed     feed.Config                        `yaml:"feed"`
	Paper    venue.PaperConfig                  `yaml:"paper"`
	Symbols  map[string]order.SymbolConstraints `yaml:"symbols"`
	Metrics  MetricsConfig                      `yaml:"metrics"`
	Alerts   alert.Config                       `yaml:"alerts"`
	Logger   logger.Config                      `yaml:"logger"`
}

// EngineConfig 迭代触发
type EngineConfig struct {
	TickInterval time.Duration `yaml:"tickInterval"` // 触发循环周期
	Throttle     time.Duration `yaml:"throttle"`     // 两次迭代的最小间隔
}

// LevelsConfig 价位管线
type LevelsConfig struct {
	level.Config `yaml:",inline"`
	RoundNumber  level.RoundNumberConfig `yaml:"roundNumber"`
	Proximity    level.ProximityConfig   `yaml:"proximity"`
}

type RiskConfig struct {
	Limits   risk.Limits         `yaml:"limits"`
	Stop     risk.StopConfig     `yaml:"stop"`
	Exposure risk.ExposureConfig `yaml:"exposure"`
}

type FiltersConfig struct {
	TimeOfDay  string                  `yaml:"timeOfDay"` // 为空表示不启用，例如 "08:45-15:00"
	Volatility filter.VolatilityConfig `yaml:"volatility"`
	MaxOrders  int                     `yaml:"maxOrders"`
	MinWeight  float64                 `yaml:"minWeight"`
}

type SessionConfig struct {
	Calendar         session.CalendarConfig `yaml:"calendar"`
	SnapshotInterval time.Duration          `yaml:"snapshotInterval"`
	AlwaysOpen       bool                   `yaml:"alwaysOpen"`
}

type ParamsConfig struct {
	File  string             `yaml:"file"` // 为空时使用内存参数
	Watch params.WatchConfig `yaml:"watch"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default 未在文件中出现的字段取这些默认值
func Default() AppConfig {
	return AppConfig{
		System:  "signal-forge",
		Symbol:  "ES",
		Account: "paper",
		Mode:    schedule.Synchronous,
		Engine:  EngineConfig{TickInterval: time.Second},
		Bus:     bus.Config{Capacity: bus.DefaultCapacity},
		Levels: LevelsConfig{
			RoundNumber: level.RoundNumberConfig{Step: 5, Count: 2},
			Proximity:   level.ProximityConfig{Range: 0.5},
		},
		Signals:  signal.DefaultPairConfig(),
		Executor: order.ExecutorConfig{TerminalMemory: 4096},
		Session: SessionConfig{
			Calendar:         session.CalendarConfig{Location: session.DefaultLocation},
			SnapshotInterval: session.DefaultSnapshotInterval,
		},
		Params:  ParamsConfig{Watch: params.DefaultWatchConfig()},
		Feed:    feed.DefaultConfig(),
		Paper:   venue.PaperConfig{Multiplier: 1},
		Metrics: MetricsConfig{Addr: ":9100"},
		Alerts:  alert.DefaultConfig(),
		Logger:  logger.DefaultConfig(),
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("SFC_MODE"); v != "" {
		m, err := schedule.ParseMode(v)
		if err != nil {
			return cfg, fmt.Errorf("SFC_MODE: %w", err)
		}
		cfg.Mode = m
	}
	if v := os.Getenv("SFC_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SFC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SFC_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("SFC_FEED_TOKEN"); v != "" {
		cfg.Feed.Token = v
	}
	return cfg, Validate(cfg)
}

// ApplyDefaults 填充依赖其他字段的默认值；yaml 解码 map 时会合并，日历窗口不能放进 Default
func ApplyDefaults(cfg *AppConfig) {
	if len(cfg.Session.Calendar.Windows) == 0 && !cfg.Session.AlwaysOpen {
		cfg.Session.Calendar.Windows = session.DefaultCalendarConfig().Windows
	}
	if cfg.Signals.Symbol == "" {
		cfg.Signals.Symbol = cfg.Symbol
	}
	if cfg.Signals.Account == "" {
		cfg.Signals.Account = cfg.Account
	}
	if cfg.Signals.System == "" {
		cfg.Signals.System = cfg.System
	}
	if cfg.Paper.Symbol == "" {
		cfg.Paper.Symbol = cfg.Symbol
	}
	if cfg.Paper.Account == "" {
		cfg.Paper.Account = cfg.Account
	}
	if cfg.Levels.Proximity.SignalKey == "" {
		cfg.Levels.Proximity.SignalKey = cfg.Signals.ParentKey
	}
	if cfg.Levels.Proximity.System == "" {
		cfg.Levels.Proximity.System = cfg.System
	}
	if cfg.Levels.RoundNumber.System == "" {
		cfg.Levels.RoundNumber.System = cfg.System
	}
}
