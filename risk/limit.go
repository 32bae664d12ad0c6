package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"signal-forge-core/order"
	"signal-forge-core/params"
)

// Limits 挂单限额，0 表示不限制
type Limits struct {
	SingleMax   float64 `yaml:"singleMax"`   // 单笔最大数量
	MaxNotional float64 `yaml:"maxNotional"` // 单笔最大名义价值
	NetMax      float64 `yaml:"netMax"`      // 成交后最大净仓位
	DailyMax    float64 `yaml:"dailyMax"`    // 每日累计数量
}

// LimitEvaluator 维护日累计成交量与净敞口校验。
type LimitEvaluator struct {
	mu       sync.Mutex
	cfg      Limits
	dayVol   map[string]float64
	dayReset time.Time
	clock    Clock
}

func NewLimitEvaluator(cfg Limits, clock Clock) *LimitEvaluator {
	if clock == nil {
		clock = NowUTC
	}
	return &LimitEvaluator{
		cfg:      cfg,
		dayVol:   make(map[string]float64),
		dayReset: clock.Now(),
		clock:    clock,
	}
}

// EvaluatePending 校验下单前约束；快照持仓已包含本批次先通过的订单。
func (l *LimitEvaluator) EvaluatePending(o order.PendingOrder, snap Snapshot) (order.RiskAssessment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeResetLocked()

	qty := math.Abs(o.Quantity)
	if qty == 0 {
		return order.Reject("zero quantity"), nil
	}
	if l.cfg.SingleMax > 0 && qty > l.cfg.SingleMax {
		return order.Reject("%v: %.2f > single %.2f", ErrSingleExceed, qty, l.cfg.SingleMax), nil
	}
	price := o.Price
	if price == 0 {
		price = snap.Price
	}
	notional := qty * price
	if l.cfg.MaxNotional > 0 && notional > l.cfg.MaxNotional {
		return order.Reject("%v: %.2f > notional %.2f", ErrNotionalExceed, notional, l.cfg.MaxNotional), nil
	}
	if l.cfg.DailyMax > 0 && l.dayVol[o.Symbol]+qty > l.cfg.DailyMax {
		return order.Reject("%v: %.2f > daily %.2f", ErrDailyExceed, l.dayVol[o.Symbol]+qty, l.cfg.DailyMax), nil
	}
	net := snap.Position.Quantity + o.SignedQty()
	if l.cfg.NetMax > 0 && math.Abs(net) > l.cfg.NetMax {
		return order.Reject("%v: %.2f > net %.2f", ErrNetExceed, net, l.cfg.NetMax), nil
	}

	a := order.Accept("within limits")
	if o.StopLoss > 0 && price > 0 {
		a.ValueAtRisk = qty * math.Abs(price-o.StopLoss)
	}
	return a, nil
}

// Accepted 计入日累计
func (l *LimitEvaluator) Accepted(o order.PendingOrder, _ time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeResetLocked()
	l.dayVol[o.Symbol] += math.Abs(o.Quantity)
}

// DailyVolume 当日累计数量
func (l *LimitEvaluator) DailyVolume(symbol string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dayVol[symbol]
}

// Reconfigure 从参数存储重新读取限额，缺失的 key 保留当前值
func (l *LimitEvaluator) Reconfigure(r params.Reader) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := Limits{
		SingleMax:   r.Float("risk.singleMax", l.cfg.SingleMax),
		MaxNotional: r.Float("risk.maxNotional", l.cfg.MaxNotional),
		NetMax:      r.Float("risk.netMax", l.cfg.NetMax),
		DailyMax:    r.Float("risk.dailyMax", l.cfg.DailyMax),
	}
	if next.SingleMax < 0 || next.MaxNotional < 0 || next.NetMax < 0 || next.DailyMax < 0 {
		return fmt.Errorf("negative risk limit: %+v", next)
	}
	l.cfg = next
	return nil
}

// Limits 当前限额
func (l *LimitEvaluator) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *LimitEvaluator) maybeResetLocked() {
	now := l.clock.Now()
	if now.Sub(l.dayReset) > 24*time.Hour {
		l.dayVol = make(map[string]float64)
		l.dayReset = now
	}
}
