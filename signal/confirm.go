package signal

import (
	"sync"
	"time"
)

// PriceSource 当前价格
type PriceSource interface {
	CurrentPrice() float64
}

// ConfirmGenerator 价格向父信号方向确认时，为仍在排队的父信号发一个引用它的子信号。
// 每个父信号只确认一次。
type ConfirmGenerator struct {
	parentKey string
	childKey  string
	system    string
	prices    PriceSource

	mu        sync.Mutex
	confirmed map[string]struct{}
	now       func() time.Time
}

func NewConfirmGenerator(cfg PairConfig, prices PriceSource) *ConfirmGenerator {
	def := DefaultPairConfig()
	if cfg.ParentKey == "" {
		cfg.ParentKey = def.ParentKey
	}
	if cfg.ChildKey == "" {
		cfg.ChildKey = def.ChildKey
	}
	return &ConfirmGenerator{
		parentKey: cfg.ParentKey,
		childKey:  cfg.ChildKey,
		system:    cfg.System,
		prices:    prices,
		confirmed: make(map[string]struct{}),
		now:       time.Now,
	}
}

func (g *ConfirmGenerator) Generate(view View) []TradeSignal {
	parents := view.Pending(g.parentKey)
	if len(parents) == 0 {
		return nil
	}
	price := 0.0
	if g.prices != nil {
		price = g.prices.CurrentPrice()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	live := make(map[string]struct{}, len(parents))
	var out []TradeSignal
	for _, p := range parents {
		live[p.ID] = struct{}{}
		if _, done := g.confirmed[p.ID]; done {
			continue
		}
		if !confirms(p, price) {
			continue
		}
		child := TradeSignal{
			ID:        NewID(),
			Key:       g.childKey,
			Buy:       p.Buy,
			Sell:      p.Sell,
			Price:     price,
			Weight:    p.Weight,
			System:    g.system,
			CreatedAt: g.now(),
		}.Attach(p.ID)
		g.confirmed[p.ID] = struct{}{}
		out = append(out, child)
	}
	// 父信号离开队列后不再需要记住
	for id := range g.confirmed {
		if _, ok := live[id]; !ok {
			delete(g.confirmed, id)
		}
	}
	return out
}

// confirms 没有价格来源时直接确认
func confirms(parent TradeSignal, price float64) bool {
	switch {
	case price <= 0:
		return true
	case parent.Buy:
		return price >= parent.Price
	case parent.Sell:
		return price <= parent.Price
	default:
		return false
	}
}
