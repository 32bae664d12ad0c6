package signal

import (
	"time"

	"github.com/google/uuid"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/order"
)

// Generator 每次迭代产生新的原始信号
type Generator interface {
	Generate(view View) []TradeSignal
}

// GeneratorFunc 函数适配
type GeneratorFunc func(view View) []TradeSignal

func (f GeneratorFunc) Generate(view View) []TradeSignal { return f(view) }

// NopGenerator 不产生信号，信号全部来自价位流水线或外部推送
type NopGenerator struct{}

func (NopGenerator) Generate(View) []TradeSignal { return nil }

// Processor 把已排队、相互关联的信号解析为待发订单，并给出被消费的信号 ID
type Processor interface {
	Process(view View) (orders []order.PendingOrder, consumed []string)
}

// ProcessorFunc 函数适配
type ProcessorFunc func(view View) ([]order.PendingOrder, []string)

func (f ProcessorFunc) Process(view View) ([]order.PendingOrder, []string) { return f(view) }

// PairConfig 父子信号配对参数
type PairConfig struct {
	ParentKey       string  `yaml:"parentKey"`
	ChildKey        string  `yaml:"childKey"`
	Symbol          string  `yaml:"symbol"`
	Account         string  `yaml:"account"`
	DefaultQuantity float64 `yaml:"defaultQuantity"`
	System          string  `yaml:"system"`
}

// DefaultPairConfig 默认的 key 约定
func DefaultPairConfig() PairConfig {
	return PairConfig{
		ParentKey:       "SIGNAL_1",
		ChildKey:        "SIGNAL_2",
		DefaultQuantity: 1,
	}
}

// PairProcessor 子信号引用父信号时生成一个限价单，价格取父信号价格。
// 父子信号都被消费，每个父信号每批最多使用一次；找不到可用父信号的子信号也会被消费并记录。
// 单独存在的父信号保持排队，等待后续子信号。
type PairProcessor struct {
	cfg    PairConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewPairProcessor(cfg PairConfig, log *logger.Logger) *PairProcessor {
	def := DefaultPairConfig()
	if cfg.ParentKey == "" {
		cfg.ParentKey = def.ParentKey
	}
	if cfg.ChildKey == "" {
		cfg.ChildKey = def.ChildKey
	}
	if cfg.DefaultQuantity <= 0 {
		cfg.DefaultQuantity = def.DefaultQuantity
	}
	return &PairProcessor{cfg: cfg, logger: logger.OrNop(log).Named("pair_processor"), now: time.Now}
}

func (p *PairProcessor) Process(view View) ([]order.PendingOrder, []string) {
	var (
		orders   []order.PendingOrder
		consumed []string
		used     = make(map[string]bool) // 本批已消费的父信号
	)
	for _, child := range view.Pending(p.cfg.ChildKey) {
		consumed = append(consumed, child.ID)

		var parents []TradeSignal
		for _, id := range child.AttachedIDs {
			parent, ok := view.Lookup(id)
			if !ok || parent.Key != p.cfg.ParentKey || used[parent.ID] {
				continue
			}
			used[parent.ID] = true
			parents = append(parents, parent)
			consumed = append(consumed, parent.ID)
		}
		if len(parents) == 0 {
			p.logger.LogSignal("orphan_child", child.ID, map[string]interface{}{
				"attached": child.AttachedIDs,
			})
			continue
		}

		po, ok := p.build(parents[0], child)
		if !ok {
			p.logger.LogSignal("no_direction", child.ID, map[string]interface{}{"parent_id": parents[0].ID})
			continue
		}
		for _, extra := range parents[1:] {
			po.SignalIDs = append(po.SignalIDs, extra.ID)
		}
		orders = append(orders, po)
	}
	return orders, consumed
}

func (p *PairProcessor) build(parent, child TradeSignal) (order.PendingOrder, bool) {
	var side order.Side
	switch {
	case child.Buy:
		side = order.SideBuy
	case child.Sell:
		side = order.SideSell
	case parent.Buy:
		side = order.SideBuy
	case parent.Sell:
		side = order.SideSell
	default:
		return order.PendingOrder{}, false
	}

	qty := child.Quantity
	if qty <= 0 {
		qty = parent.Quantity
	}
	if qty <= 0 {
		qty = p.cfg.DefaultQuantity
	}
	stop := firstPositive(child.StopLoss, parent.StopLoss)
	target := firstPositive(child.TakeProfit, parent.TakeProfit)
	system := p.cfg.System
	if system == "" {
		system = child.System
	}

	po := order.PendingOrder{
		ClientID:   uuid.NewString(),
		Symbol:     p.cfg.Symbol,
		Account:    p.cfg.Account,
		Side:       side,
		Kind:       order.KindLimit,
		Quantity:   qty,
		Price:      parent.Price,
		StopLoss:   stop,
		TakeProfit: target,
		Weight:     child.Weight,
		SignalIDs:  []string{parent.ID, child.ID},
		System:     system,
		CreatedAt:  p.now(),
	}
	po.Attached = Bracket(po)
	if len(po.Attached) > 0 {
		po.Kind = order.KindOCO
	}
	return po, true
}

// Bracket 根据止损/止盈价生成 OCO 子单
func Bracket(entry order.PendingOrder) []order.PendingOrder {
	var legs []order.PendingOrder
	exit := entry.Side.Opposite()
	if entry.StopLoss > 0 {
		legs = append(legs, order.PendingOrder{
			Symbol: entry.Symbol, Account: entry.Account, Side: exit,
			Kind: order.KindStop, Quantity: entry.Quantity, Price: entry.StopLoss,
		})
	}
	if entry.TakeProfit > 0 {
		legs = append(legs, order.PendingOrder{
			Symbol: entry.Symbol, Account: entry.Account, Side: exit,
			Kind: order.KindLimit, Quantity: entry.Quantity, Price: entry.TakeProfit,
		})
	}
	return legs
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
