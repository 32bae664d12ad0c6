// Package risk 三个独立的风控评估器（挂单、活跃订单、持仓）以及统一入口 Auditor。
package risk

import (
	"time"

	"signal-forge-core/order"
	"signal-forge-core/venue"
)

// Snapshot 一次审计调用开始时从交易场所取得的只读快照
type Snapshot struct {
	Time     time.Time
	Price    float64
	Position venue.Position
}

// PendingEvaluator 评估尚未提交的订单
type PendingEvaluator interface {
	EvaluatePending(o order.PendingOrder, snap Snapshot) (order.RiskAssessment, error)
}

// ActiveEvaluator 评估已在场所的订单
type ActiveEvaluator interface {
	EvaluateActive(o order.ExecutedOrder, snap Snapshot) (order.RiskAssessment, error)
}

// PositionEvaluator 评估汇总持仓
type PositionEvaluator interface {
	EvaluatePosition(pos venue.Position, snap Snapshot) (order.RiskAssessment, error)
}

// Acceptor 可选接口：挂单通过审计后回调，用于累计日成交量等状态
type Acceptor interface {
	Accepted(o order.PendingOrder, at time.Time)
}

type PendingFunc func(o order.PendingOrder, snap Snapshot) (order.RiskAssessment, error)

func (f PendingFunc) EvaluatePending(o order.PendingOrder, snap Snapshot) (order.RiskAssessment, error) {
	return f(o, snap)
}

type ActiveFunc func(o order.ExecutedOrder, snap Snapshot) (order.RiskAssessment, error)

func (f ActiveFunc) EvaluateActive(o order.ExecutedOrder, snap Snapshot) (order.RiskAssessment, error) {
	return f(o, snap)
}

type PositionFunc func(pos venue.Position, snap Snapshot) (order.RiskAssessment, error)

func (f PositionFunc) EvaluatePosition(pos venue.Position, snap Snapshot) (order.RiskAssessment, error) {
	return f(pos, snap)
}

// PendingChain 顺序执行，第一个拒绝或错误即中止
type PendingChain []PendingEvaluator

// ChainPending 组合多个挂单评估器
func ChainPending(evals ...PendingEvaluator) PendingChain { return PendingChain(evals) }

func (c PendingChain) EvaluatePending(o order.PendingOrder, snap Snapshot) (order.RiskAssessment, error) {
	last := order.Accept("no pending evaluator")
	for _, e := range c {
		if e == nil {
			continue
		}
		a, err := e.EvaluatePending(o, snap)
		if err != nil || !a.Acceptable {
			return a, err
		}
		last = a
	}
	return last, nil
}

// Accepted 转发给实现了 Acceptor 的成员
func (c PendingChain) Accepted(o order.PendingOrder, at time.Time) {
	for _, e := range c {
		if acc, ok := e.(Acceptor); ok {
			acc.Accepted(o, at)
		}
	}
}

// ActiveChain 顺序执行，第一个拒绝或错误即中止
type ActiveChain []ActiveEvaluator

func ChainActive(evals ...ActiveEvaluator) ActiveChain { return ActiveChain(evals) }

func (c ActiveChain) EvaluateActive(o order.ExecutedOrder, snap Snapshot) (order.RiskAssessment, error) {
	last := order.Accept("no active evaluator")
	for _, e := range c {
		if e == nil {
			continue
		}
		a, err := e.EvaluateActive(o, snap)
		if err != nil || !a.Acceptable {
			return a, err
		}
		last = a
	}
	return last, nil
}

// PositionChain 顺序执行，第一个拒绝或错误即中止
type PositionChain []PositionEvaluator

func ChainPosition(evals ...PositionEvaluator) PositionChain { return PositionChain(evals) }

func (c PositionChain) EvaluatePosition(pos venue.Position, snap Snapshot) (order.RiskAssessment, error) {
	last := order.Accept("no position evaluator")
	for _, e := range c {
		if e == nil {
			continue
		}
		a, err := e.EvaluatePosition(pos, snap)
		if err != nil || !a.Acceptable {
			return a, err
		}
		last = a
	}
	return last, nil
}
