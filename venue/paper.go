package venue

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/order"
)

// PaperConfig 模拟撮合配置
type PaperConfig struct {
	Symbol     string  `yaml:"symbol"`
	Account    string  `yaml:"account"`
	Multiplier float64 `yaml:"multiplier"` // 每点价值
	// 入场时立即成交的比例，(0,1)；其余部分在下一根 bar 成交。<=0 或 >=1 表示全部成交
	PartialFillRatio float64 `yaml:"partialFillRatio"`
}

type paperOrder struct {
	exec   order.ExecutedOrder
	kind   order.Kind
	limit  float64
	stop   float64
	target float64
}

func (p *paperOrder) open() bool {
	return !p.exec.IsTerminal() && p.exec.ExitTime.IsZero()
}

// Paper 内存交易场所：按当前价成交，bar 驱动的边沿就绪，带止损止盈的持仓核算。
// 所有方法并发安全。
type Paper struct {
	cfg    PaperConfig
	logger *logger.Logger

	mu        sync.Mutex
	price     float64
	now       time.Time
	seq       uint64
	consumed  uint64
	available bool
	nextID    int
	orders    map[string]*paperOrder
	pos       tracker
	day       time.Time
	dayStart  float64
	worstOpen float64
	peak      float64
	stats     Stats
}

// NewPaper 创建模拟交易场所
func NewPaper(cfg PaperConfig, log *logger.Logger) *Paper {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &Paper{
		cfg:       cfg,
		logger:    logger.OrNop(log).Named("paper_venue"),
		available: true,
		orders:    make(map[string]*paperOrder),
	}
}

// SetAvailable 模拟连接断开/恢复
func (p *Paper) SetAvailable(ok bool) {
	p.mu.Lock()
	p.available = ok
	p.mu.Unlock()
}

// Advance 推进一根 bar：撮合挂单、检查止损止盈、标记新的就绪边沿
func (p *Paper) Advance(bar Bar) {
	if bar.Time.IsZero() {
		bar.Time = time.Now()
	}
	if bar.High == 0 {
		bar.High = math.Max(bar.Open, bar.Close)
	}
	if bar.Low == 0 {
		bar.Low = math.Min(bar.Open, bar.Close)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if y, m, d := bar.Time.Date(); p.day.IsZero() || !sameDay(p.day, bar.Time) {
		p.day = time.Date(y, m, d, 0, 0, 0, 0, bar.Time.Location())
		p.dayStart = p.pos.realized
	}
	p.price = bar.Close
	p.now = bar.Time
	p.seq++

	for _, id := range p.sortedIDsLocked() {
		po := p.orders[id]
		if !po.open() {
			continue
		}
		p.fillWorkingLocked(po, bar)
		p.checkExitLocked(po, bar)
	}
	if open := p.pos.valuation(p.price) * p.cfg.Multiplier; open < p.worstOpen {
		p.worstOpen = open
	}
}

// Ready 主消费者的边沿就绪：每根新 bar 返回一次 true
func (p *Paper) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available || p.seq == p.consumed {
		return false
	}
	p.consumed = p.seq
	return true
}

// BarSequence 当前 bar 序号
func (p *Paper) BarSequence() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// CurrentPrice 最新价
func (p *Paper) CurrentPrice() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price
}

// Now 平台时间，尚无 bar 时取墙上时间
func (p *Paper) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now.IsZero() {
		return time.Now()
	}
	return p.now
}

// BuyEntry 买入入场
func (p *Paper) BuyEntry(o order.PendingOrder) (order.Ack, error) {
	o.Side = order.SideBuy
	return p.submit(o)
}

// SellEntry 卖出入场
func (p *Paper) SellEntry(o order.PendingOrder) (order.Ack, error) {
	o.Side = order.SideSell
	return p.submit(o)
}

// SubmitBracket 入场单带 OCO 止损止盈
func (p *Paper) SubmitBracket(o order.PendingOrder) (order.Ack, error) {
	return p.submit(o)
}

// QueryOrder 返回交易场所视图
func (p *Paper) QueryOrder(id string) (order.ExecutedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return order.ExecutedOrder{}, ErrUnavailable
	}
	po, ok := p.orders[id]
	if !ok {
		return order.ExecutedOrder{}, fmt.Errorf("%w: %s", order.ErrUnknownOrder, id)
	}
	return po.exec, nil
}

// CloseOrCancel 未成交部分撤销，已成交部分按当前价平仓
func (p *Paper) CloseOrCancel(o order.ExecutedOrder) (order.ExecutedOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return o, ErrUnavailable
	}
	po, ok := p.orders[o.ID]
	if !ok {
		return o, fmt.Errorf("%w: %s", order.ErrUnknownOrder, o.ID)
	}
	if !po.open() {
		return po.exec, nil
	}
	if p.price <= 0 {
		return po.exec, ErrNoPrice
	}

	switch {
	case po.exec.FilledQty == 0:
		po.exec.Status = order.StatusCancelled
	case po.exec.Status == order.StatusPartial:
		p.exitLocked(po, p.price)
		po.exec.Status = order.StatusCancelled
	default:
		p.exitLocked(po, p.price)
	}
	p.logger.Info("paper close_or_cancel",
		zap.String("order_id", po.exec.ID),
		zap.String("status", string(po.exec.Status)))
	return po.exec, nil
}

// CancelAll 撤销/平掉全部未结订单
func (p *Paper) CancelAll() error {
	p.mu.Lock()
	ids := p.sortedIDsLocked()
	p.mu.Unlock()

	var errs error
	for _, id := range ids {
		p.mu.Lock()
		po := p.orders[id]
		exec := po.exec
		open := po.open()
		p.mu.Unlock()
		if !open {
			continue
		}
		if _, err := p.CloseOrCancel(exec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", exec.ID, err))
		}
	}
	return errs
}

// Position 持仓快照
func (p *Paper) Position(symbol string) (Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return Position{}, ErrUnavailable
	}
	working := 0
	for _, po := range p.orders {
		if po.open() && !order.FullyFilled(po.exec.FilledQty, po.exec.RequestedQty) {
			working++
		}
	}
	open := p.pos.valuation(p.price) * p.cfg.Multiplier
	return Position{
		Symbol:        symbol,
		Account:       p.cfg.Account,
		Quantity:      p.pos.net,
		AveragePrice:  p.pos.cost,
		OpenPnL:       open,
		DailyPnL:      (p.pos.realized-p.dayStart)*p.cfg.Multiplier + open,
		MaxOpenLoss:   p.worstOpen,
		WorkingOrders: working,
	}, nil
}

// Stats 会话统计
func (p *Paper) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Paper) submit(o order.PendingOrder) (order.Ack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return order.Ack{}, ErrUnavailable
	}
	if o.Quantity <= 0 {
		return order.Ack{Status: order.StatusRejected, Reason: "quantity must be > 0"}, nil
	}
	if p.price <= 0 {
		return order.Ack{}, ErrNoPrice
	}

	p.nextID++
	id := fmt.Sprintf("P-%06d", p.nextID)
	po := &paperOrder{
		kind:   o.Kind,
		limit:  o.Price,
		stop:   o.StopLoss,
		target: o.TakeProfit,
		exec: order.ExecutedOrder{
			ID:           id,
			ClientID:     o.ClientID,
			Symbol:       o.Symbol,
			Account:      o.Account,
			Side:         o.Side,
			StopLoss:     o.StopLoss,
			TakeProfit:   o.TakeProfit,
			RequestedQty: o.Quantity,
			Risk:         o.Risk,
			EntryTime:    p.nowLocked(),
			Status:       order.StatusNone,
		},
	}
	for _, leg := range o.Attached {
		switch leg.Kind {
		case order.KindStop, order.KindStopLimit:
			po.stop = leg.Price
		case order.KindLimit:
			po.target = leg.Price
		}
	}
	po.exec.StopLoss, po.exec.TakeProfit = po.stop, po.target
	p.orders[id] = po

	if p.marketableLocked(po, p.price) {
		qty := o.Quantity
		if r := p.cfg.PartialFillRatio; r > 0 && r < 1 {
			qty = o.Quantity * r
		}
		p.fillLocked(po, qty, p.fillPriceLocked(po, p.price))
	}
	return order.Ack{
		OrderID:   id,
		Status:    po.exec.Status,
		FilledQty: po.exec.FilledQty,
		FillPrice: po.exec.FillPrice,
		Time:      po.exec.EntryTime,
	}, nil
}

func (p *Paper) fillWorkingLocked(po *paperOrder, bar Bar) {
	remaining := po.exec.RequestedQty - po.exec.FilledQty
	if remaining <= 0 {
		return
	}
	touch := bar.Low
	if po.exec.Side == order.SideSell {
		touch = bar.High
	}
	if p.marketableLocked(po, touch) {
		p.fillLocked(po, remaining, p.fillPriceLocked(po, bar.Close))
	}
}

func (p *Paper) checkExitLocked(po *paperOrder, bar Bar) {
	if po.exec.FilledQty == 0 || !po.exec.ExitTime.IsZero() {
		return
	}
	long := po.exec.Side == order.SideBuy
	switch {
	case po.stop > 0 && long && bar.Low <= po.stop,
		po.stop > 0 && !long && bar.High >= po.stop:
		p.exitLocked(po, po.stop)
	case po.target > 0 && long && bar.High >= po.target,
		po.target > 0 && !long && bar.Low <= po.target:
		p.exitLocked(po, po.target)
	}
}

func (p *Paper) marketableLocked(po *paperOrder, price float64) bool {
	if po.kind == order.KindMarket || po.limit <= 0 {
		return true
	}
	if po.exec.Side == order.SideBuy {
		return price <= po.limit
	}
	return price >= po.limit
}

func (p *Paper) fillPriceLocked(po *paperOrder, mark float64) float64 {
	if po.kind == order.KindMarket || po.limit <= 0 {
		return mark
	}
	if po.exec.Side == order.SideBuy {
		return math.Min(mark, po.limit)
	}
	return math.Max(mark, po.limit)
}

func (p *Paper) fillLocked(po *paperOrder, qty, price float64) {
	prev := po.exec.FilledQty
	po.exec.FilledQty += qty
	if prev == 0 {
		po.exec.FillPrice = price
	} else {
		po.exec.FillPrice = (po.exec.FillPrice*prev + price*qty) / po.exec.FilledQty
	}
	if order.FullyFilled(po.exec.FilledQty, po.exec.RequestedQty) {
		po.exec.Status = order.StatusFilled
	} else {
		po.exec.Status = order.StatusPartial
	}
	p.pos.apply(po.exec.Side.Sign()*qty, price)
}

// exitLocked 按价格平掉该订单的成交部分并计入统计
func (p *Paper) exitLocked(po *paperOrder, price float64) {
	qty := po.exec.FilledQty
	p.pos.apply(-po.exec.Side.Sign()*qty, price)
	pnl := po.exec.Side.Sign() * qty * (price - po.exec.FillPrice) * p.cfg.Multiplier

	po.exec.ExitTime = p.nowLocked()
	po.exec.ExitPrice = price

	p.stats.TotalTrades++
	p.stats.Profit += pnl
	if pnl >= 0 {
		p.stats.WinningTrades++
		p.stats.ClosedProfit += pnl
	} else {
		p.stats.LosingTrades++
		p.stats.ClosedLoss += pnl
	}
	if p.stats.Profit > p.peak {
		p.peak = p.stats.Profit
	}
	if dd := p.peak - p.stats.Profit; dd > p.stats.MaxDrawdown {
		p.stats.MaxDrawdown = dd
	}
}

func (p *Paper) nowLocked() time.Time {
	if p.now.IsZero() {
		return time.Now()
	}
	return p.now
}

func (p *Paper) sortedIDsLocked() []string {
	ids := make([]string, 0, len(p.orders))
	for id := range p.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
