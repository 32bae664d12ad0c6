package order

import (
	"math"
	"time"
)

// Status 已执行订单的状态
type Status string

const (
	StatusNone      Status = "NONE"
	StatusPartial   Status = "PARTIALLY_FILLED"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Side 方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign 买为 +1，卖为 -1
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite 反方向
func (s Side) Opposite() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

// Kind 订单类型
type Kind string

const (
	KindMarket    Kind = "MARKET"
	KindLimit     Kind = "LIMIT"
	KindStop      Kind = "STOP"
	KindStopLimit Kind = "STOP_LIMIT"
	KindOCO       Kind = "OCO"
)

// PendingOrder 尚未发往交易场所的订单请求。
// 风控审计后只允许写入 Risk 字段。
type PendingOrder struct {
	ClientID   string
	Symbol     string
	Account    string
	Side       Side
	Kind       Kind
	Quantity   float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Weight     float64
	Risk       RiskAssessment
	Attached   []PendingOrder // OCO 子单（止损/止盈）
	SignalIDs  []string       // 来源信号
	System     string
	CreatedAt  time.Time
}

// Notional 名义价值
func (p PendingOrder) Notional() float64 {
	return math.Abs(p.Quantity * p.Price)
}

// SignedQty 带方向的数量
func (p PendingOrder) SignedQty() float64 {
	return p.Side.Sign() * math.Abs(p.Quantity)
}

// ExecutedOrder 交易场所已确认或成交的订单，由活跃订单表独占持有
type ExecutedOrder struct {
	ID           string
	ClientID     string
	Symbol       string
	Account      string
	Side         Side
	FillPrice    float64
	StopLoss     float64
	TakeProfit   float64
	FilledQty    float64
	RequestedQty float64
	Risk         RiskAssessment
	EntryTime    time.Time
	ExitTime     time.Time
	ExitPrice    float64
	Status       Status
}

// IsTerminal Cancelled/Rejected 不会再变化
func (o ExecutedOrder) IsTerminal() bool {
	return o.Status == StatusCancelled || o.Status == StatusRejected
}

// IsClosed 已成交且仓位已平
func (o ExecutedOrder) IsClosed() bool {
	return o.Status == StatusFilled && !o.ExitTime.IsZero()
}

// FullyFilled 成交量是否等于请求量
func FullyFilled(filled, requested float64) bool {
	return requested > 0 && math.Abs(filled-requested) <= 1e-9*math.Max(1, requested)
}
