package risk

import (
	"fmt"
	"sync"
	"time"

	"signal-forge-core/order"
	"signal-forge-core/params"
)

// StopConfig 活跃订单止损规则，0 表示不限制
type StopConfig struct {
	MaxOrderLoss  float64       `yaml:"maxOrderLoss"`  // 单笔浮亏上限（计价货币）
	MaxHolding    time.Duration `yaml:"maxHolding"`    // 成交后最长持有时间
	MaxWorkingAge time.Duration `yaml:"maxWorkingAge"` // 未成交挂单最长存活时间
	Multiplier    float64       `yaml:"multiplier"`    // 合约乘数，默认 1
}

// StopEvaluator 按浮亏与存续时间判断活跃订单是否需要平仓或撤单
type StopEvaluator struct {
	mu  sync.RWMutex
	cfg StopConfig
}

func NewStopEvaluator(cfg StopConfig) *StopEvaluator {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &StopEvaluator{cfg: cfg}
}

func (s *StopEvaluator) EvaluateActive(o order.ExecutedOrder, snap Snapshot) (order.RiskAssessment, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	// 已平仓的订单不再评估
	if o.IsClosed() || o.IsTerminal() {
		return order.Accept("closed"), nil
	}

	if o.FilledQty == 0 {
		if cfg.MaxWorkingAge > 0 && !o.EntryTime.IsZero() && snap.Time.Sub(o.EntryTime) > cfg.MaxWorkingAge {
			return order.Reject("%v: %s", ErrStaleWorking, snap.Time.Sub(o.EntryTime)), nil
		}
		return order.Accept("working"), nil
	}

	if snap.Price <= 0 {
		return order.RiskAssessment{}, fmt.Errorf("no mark price for order %s", o.ID)
	}
	openPnL := (snap.Price - o.FillPrice) * o.Side.Sign() * o.FilledQty * cfg.Multiplier
	a := order.Accept("within stop")
	if openPnL < 0 {
		a.MaxDrawdown = -openPnL
	}
	if cfg.MaxOrderLoss > 0 && -openPnL > cfg.MaxOrderLoss {
		r := order.Reject("%v: %.2f > %.2f", ErrOrderLoss, -openPnL, cfg.MaxOrderLoss)
		r.MaxDrawdown = a.MaxDrawdown
		return r, nil
	}
	if cfg.MaxHolding > 0 && !o.EntryTime.IsZero() && snap.Time.Sub(o.EntryTime) > cfg.MaxHolding {
		return order.Reject("%v: %s", ErrHoldingTooLong, snap.Time.Sub(o.EntryTime)), nil
	}
	return a, nil
}

func (s *StopEvaluator) Reconfigure(r params.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.MaxOrderLoss = r.Float("risk.maxOrderLoss", s.cfg.MaxOrderLoss)
	s.cfg.MaxHolding = r.Duration("risk.maxHolding", s.cfg.MaxHolding)
	s.cfg.MaxWorkingAge = r.Duration("risk.maxWorkingAge", s.cfg.MaxWorkingAge)
	return nil
}
