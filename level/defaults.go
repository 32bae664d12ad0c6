package level

import (
	"math"
	"time"

	"signal-forge-core/signal"
)

// RoundNumberConfig 整数关口价位
type RoundNumberConfig struct {
	Step         float64 `yaml:"step"`
	Count        int     `yaml:"count"` // 当前价上下各生成几个
	ClearOnTouch bool    `yaml:"clearOnTouch"`
	System       string  `yaml:"system"`
}

// RoundNumberGenerator 在当前价附近按固定间距生成价位，每个价格只生成一次
type RoundNumberGenerator struct {
	cfg     RoundNumberConfig
	emitted map[float64]bool
	now     func() time.Time
}

func NewRoundNumberGenerator(cfg RoundNumberConfig) *RoundNumberGenerator {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	return &RoundNumberGenerator{cfg: cfg, emitted: make(map[float64]bool), now: time.Now}
}

func (g *RoundNumberGenerator) GenerateLevels(price float64) []Level {
	if g.cfg.Step <= 0 || price <= 0 {
		return nil
	}
	base := math.Floor(price/g.cfg.Step) * g.cfg.Step
	var out []Level
	for i := -g.cfg.Count + 1; i <= g.cfg.Count; i++ {
		p := roundTo(base+float64(i)*g.cfg.Step, g.cfg.Step)
		if p <= 0 || g.emitted[p] {
			continue
		}
		g.emitted[p] = true
		l := New(p, "round", g.now())
		l.ClearOnTouch = g.cfg.ClearOnTouch
		l.System = g.cfg.System
		out = append(out, l)
	}
	return out
}

// ProximityConfig 接近触发参数
type ProximityConfig struct {
	Range     float64 `yaml:"range"`
	SignalKey string  `yaml:"signalKey"`
	Quantity  float64 `yaml:"quantity"`
	System    string  `yaml:"system"`
}

// ProximityProcessor 价格进入价位范围时为该价位发出一次信号。
// 价格在价位上方视为支撑，发买入；下方视为阻力，发卖出。
// ClearOnTouch 的价位触发后清除。
type ProximityProcessor struct {
	cfg       ProximityConfig
	triggered map[string]bool
	now       func() time.Time
}

func NewProximityProcessor(cfg ProximityConfig) *ProximityProcessor {
	if cfg.SignalKey == "" {
		cfg.SignalKey = signal.DefaultPairConfig().ParentKey
	}
	return &ProximityProcessor{cfg: cfg, triggered: make(map[string]bool), now: time.Now}
}

func (p *ProximityProcessor) ProcessLevels(view View, price float64) ([]signal.TradeSignal, []Level) {
	var (
		signals []signal.TradeSignal
		clear   []Level
	)
	live := make(map[string]bool, view.Len())
	for _, l := range view.All() {
		live[l.ID] = true
	}
	// 已不存在的价位不再记忆
	for id := range p.triggered {
		if !live[id] {
			delete(p.triggered, id)
		}
	}

	for _, l := range view.InRange(price, p.cfg.Range) {
		if p.triggered[l.ID] {
			continue
		}
		p.triggered[l.ID] = true

		s := signal.New(p.cfg.SignalKey, l.Price)
		s.CreatedAt = p.now()
		s.Buy = price >= l.Price
		s.Sell = !s.Buy
		s.Quantity = p.cfg.Quantity
		s.System = p.cfg.System
		if l.StopPrice != nil {
			s.StopLoss = *l.StopPrice
		}
		if l.TargetPrice != nil {
			s.TakeProfit = *l.TargetPrice
		}
		signals = append(signals, s)

		if l.ClearOnTouch {
			clear = append(clear, l)
		}
	}
	return signals, clear
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}
