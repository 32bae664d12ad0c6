package risk

import (
	"math"
	"sync"

	"signal-forge-core/order"
	"signal-forge-core/params"
	"signal-forge-core/venue"
)

// ExposureConfig 持仓闸门阈值，0 表示不限制
type ExposureConfig struct {
	NetMax         float64 `yaml:"netMax"`
	DailyLossLimit float64 `yaml:"dailyLossLimit"` // 当日亏损上限（正数）
	MaxOpenLoss    float64 `yaml:"maxOpenLoss"`    // 浮亏上限（正数）
}

// ExposureEvaluator 检查净仓位与当日/浮动亏损
type ExposureEvaluator struct {
	mu  sync.RWMutex
	cfg ExposureConfig
}

func NewExposureEvaluator(cfg ExposureConfig) *ExposureEvaluator {
	return &ExposureEvaluator{cfg: cfg}
}

func (e *ExposureEvaluator) EvaluatePosition(pos venue.Position, _ Snapshot) (order.RiskAssessment, error) {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	if cfg.NetMax > 0 && math.Abs(pos.Quantity) > cfg.NetMax {
		return order.Reject("%v: %.2f > %.2f", ErrNetExceed, pos.Quantity, cfg.NetMax), nil
	}
	if cfg.DailyLossLimit > 0 && pos.DailyPnL < -cfg.DailyLossLimit {
		return order.Reject("%v: %.2f", ErrDailyLoss, pos.DailyPnL), nil
	}
	if cfg.MaxOpenLoss > 0 && pos.OpenPnL < -cfg.MaxOpenLoss {
		return order.Reject("%v: %.2f", ErrOpenLoss, pos.OpenPnL), nil
	}
	a := order.Accept("exposure ok")
	a.MaxDrawdown = -pos.MaxOpenLoss
	return a, nil
}

func (e *ExposureEvaluator) Reconfigure(r params.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.NetMax = r.Float("risk.netMax", e.cfg.NetMax)
	e.cfg.DailyLossLimit = r.Float("risk.dailyLossLimit", e.cfg.DailyLossLimit)
	e.cfg.MaxOpenLoss = r.Float("risk.maxOpenLoss", e.cfg.MaxOpenLoss)
	return nil
}
