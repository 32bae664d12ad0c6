// Package venue 交易场所契约类型与内存模拟撮合。
package venue

import (
	"errors"
	"time"
)

var (
	ErrUnavailable = errors.New("venue unavailable")
	ErrNoPrice     = errors.New("no price yet")
)

// Bar 一根K线，Advance 以此推进模拟时间
type Bar struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Time  time.Time
}

// Position 汇总持仓快照
type Position struct {
	Symbol        string
	Account       string
	Quantity      float64 // 正多负空
	AveragePrice  float64
	OpenPnL       float64
	DailyPnL      float64
	MaxOpenLoss   float64 // 本会话出现过的最差浮动盈亏（<=0）
	WorkingOrders int
}

// Flat 无持仓
func (p Position) Flat() bool { return p.Quantity == 0 }

// Stats 会话交易统计
type Stats struct {
	Profit        float64
	ClosedProfit  float64
	ClosedLoss    float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	MaxDrawdown   float64
}

// Sequencer 暴露 bar 序号，供 EdgeTrigger 派生独立的就绪边沿
type Sequencer interface {
	BarSequence() uint64
	CurrentPrice() float64
}
