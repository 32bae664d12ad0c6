package config

import "fmt"

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalid(format string, args ...interface{}) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.System == "" {
		return invalid("system is required")
	}
	if cfg.Symbol == "" {
		return invalid("symbol is required")
	}
	if cfg.Engine.TickInterval <= 0 {
		return invalid("engine.tickInterval must be > 0")
	}
	if cfg.Engine.Throttle < 0 {
		return invalid("engine.throttle must be >= 0")
	}
	if cfg.Bus.Capacity < 0 {
		return invalid("bus.capacity must be >= 0")
	}
	if cfg.Levels.MaxAge < 0 || cfg.Levels.PollInterval < 0 {
		return invalid("levels.maxAge/pollInterval must be >= 0")
	}
	if cfg.Levels.RoundNumber.Step < 0 || cfg.Levels.RoundNumber.Count < 0 {
		return invalid("levels.roundNumber step/count must be >= 0")
	}
	if cfg.Levels.Proximity.Range < 0 {
		return invalid("levels.proximity.range must be >= 0")
	}
	if cfg.Signals.ParentKey == "" || cfg.Signals.ChildKey == "" {
		return invalid("signals.parentKey/childKey is required")
	}
	if cfg.Signals.ParentKey == cfg.Signals.ChildKey {
		return invalid("signals.parentKey and childKey must differ")
	}
	if cfg.Signals.DefaultQuantity <= 0 {
		return invalid("signals.defaultQuantity must be > 0")
	}
	if cfg.Executor.TerminalMemory < 0 {
		return invalid("executor.terminalMemory must be >= 0")
	}

	l := cfg.Risk.Limits
	if l.SingleMax < 0 || l.MaxNotional < 0 || l.NetMax < 0 || l.DailyMax < 0 {
		return invalid("risk.limits must be >= 0")
	}
	s := cfg.Risk.Stop
	if s.MaxOrderLoss < 0 || s.MaxHolding < 0 || s.MaxWorkingAge < 0 {
		return invalid("risk.stop must be >= 0")
	}
	e := cfg.Risk.Exposure
	if e.NetMax < 0 || e.DailyLossLimit < 0 || e.MaxOpenLoss < 0 {
		return invalid("risk.exposure must be >= 0")
	}

	if cfg.Filters.MaxOrders < 0 {
		return invalid("filters.maxOrders must be >= 0")
	}
	v := cfg.Filters.Volatility
	if v.OneMinuteThresh < 0 || v.FiveMinuteThresh < 0 || v.Cooldown < 0 {
		return invalid("filters.volatility must be >= 0")
	}
	if cfg.Session.SnapshotInterval < 0 {
		return invalid("session.snapshotInterval must be >= 0")
	}
	if !cfg.Session.AlwaysOpen && len(cfg.Session.Calendar.Windows) == 0 {
		return invalid("session.calendar.windows is required unless session.alwaysOpen")
	}
	if cfg.Feed.Enabled && cfg.Feed.URL == "" {
		return invalid("feed.url is required when feed is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return invalid("metrics.addr is required when metrics are enabled")
	}
	if cfg.Alerts.Throttle < 0 || cfg.Alerts.HealthInterval < 0 {
		return invalid("alerts.throttle/healthInterval must be >= 0")
	}
	if cfg.Paper.Multiplier < 0 {
		return invalid("paper.multiplier must be >= 0")
	}
	for sym, sc := range cfg.Symbols {
		if sc.TickSize < 0 || sc.StepSize < 0 {
			return invalid("symbol %s tickSize/stepSize must be >= 0", sym)
		}
		if sc.MinQty < 0 || sc.MaxQty < 0 {
			return invalid("symbol %s qty bounds must be >= 0", sym)
		}
		if sc.MaxQty > 0 && sc.MinQty > sc.MaxQty {
			return invalid("symbol %s minQty > maxQty", sym)
		}
	}
	return nil
}
