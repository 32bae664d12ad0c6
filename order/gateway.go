package order

import (
	"errors"
	"time"
)

var ErrUnknownOrder = errors.New("unknown order")

// Ack 交易场所对一次提交的回报
type Ack struct {
	OrderID   string
	Status    Status
	FilledQty float64
	FillPrice float64
	Time      time.Time
	Reason    string
}

// Gateway 执行所需的交易场所能力，由 venue 实现。
type Gateway interface {
	BuyEntry(o PendingOrder) (Ack, error)
	SellEntry(o PendingOrder) (Ack, error)
	SubmitBracket(o PendingOrder) (Ack, error)
	QueryOrder(orderID string) (ExecutedOrder, error)
}

// Processor 决定一个待发订单如何映射为交易场所调用
type Processor interface {
	Execute(gw Gateway, o PendingOrder) (Ack, error)
}

// ProcessorFunc 函数适配
type ProcessorFunc func(gw Gateway, o PendingOrder) (Ack, error)

func (f ProcessorFunc) Execute(gw Gateway, o PendingOrder) (Ack, error) { return f(gw, o) }

// DefaultProcessor 带子单走 bracket，否则按方向入场
type DefaultProcessor struct{}

func (DefaultProcessor) Execute(gw Gateway, o PendingOrder) (Ack, error) {
	if len(o.Attached) > 0 || o.Kind == KindOCO {
		return gw.SubmitBracket(o)
	}
	if o.Side == SideSell {
		return gw.SellEntry(o)
	}
	return gw.BuyEntry(o)
}
