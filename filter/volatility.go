package filter

import (
	"sync"
	"time"

	"signal-forge-core/order"
)

// Tick 依赖 minimal 行情信息。
type Tick struct {
	Price float64
	Ts    time.Time
}

// VolatilityConfig 1m、5m 相对涨跌幅阈值，触发后在 Cooldown 内拒绝所有新单
type VolatilityConfig struct {
	OneMinuteThresh  float64       `yaml:"oneMinute"`
	FiveMinuteThresh float64       `yaml:"fiveMinute"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// VolatilityFilter 基于近期波动率熔断。
type VolatilityFilter struct {
	cfg      VolatilityConfig
	mu       sync.Mutex
	window1m []Tick
	window5m []Tick
	until    time.Time
	lastTrip string
}

func NewVolatilityFilter(cfg VolatilityConfig) *VolatilityFilter {
	return &VolatilityFilter{
		cfg:      cfg,
		window1m: make([]Tick, 0, 128),
		window5m: make([]Tick, 0, 512),
	}
}

func (f *VolatilityFilter) Name() string { return "volatility" }

func (f *VolatilityFilter) Apply(ctx Context, orders []order.PendingOrder) []order.PendingOrder {
	if ctx.Price > 0 {
		f.OnTick(Tick{Price: ctx.Price, Ts: ctx.Now})
	}
	if f.Tripped(ctx.Now) {
		return nil
	}
	return orders
}

// OnTick 记录价格，返回 (是否触发, 触发窗口 "1m"/"5m"/"")
func (f *VolatilityFilter) OnTick(t Tick) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.window1m = append(f.window1m, t)
	f.window5m = append(f.window5m, t)
	trim(&f.window1m, t.Ts.Add(-1*time.Minute))
	trim(&f.window5m, t.Ts.Add(-5*time.Minute))

	win := ""
	switch {
	case exceeds(f.window1m, f.cfg.OneMinuteThresh):
		win = "1m"
	case exceeds(f.window5m, f.cfg.FiveMinuteThresh):
		win = "5m"
	default:
		return false, ""
	}
	f.until = t.Ts.Add(f.cfg.Cooldown)
	f.lastTrip = win
	return true, win
}

// Tripped 是否处于熔断期
func (f *VolatilityFilter) Tripped(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTrip != "" && !now.After(f.until)
}

func trim(buf *[]Tick, cutoff time.Time) {
	i := 0
	for ; i < len(*buf); i++ {
		if (*buf)[i].Ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		*buf = (*buf)[i:]
	}
}

func exceeds(buf []Tick, thresh float64) bool {
	if thresh <= 0 || len(buf) == 0 {
		return false
	}
	first := buf[0].Price
	last := buf[len(buf)-1].Price
	if first == 0 {
		return false
	}
	change := (last - first) / first
	return change > thresh || change < -thresh
}
