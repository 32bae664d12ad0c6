package risk

import (
	"errors"
	"fmt"
	"time"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/order"
	"signal-forge-core/venue"
)

// Venue 审计需要的交易场所能力
type Venue interface {
	Position(symbol string) (venue.Position, error)
	CurrentPrice() float64
	Now() time.Time
	CloseOrCancel(o order.ExecutedOrder) (order.ExecutedOrder, error)
}

// Config 审计配置
type Config struct {
	Symbol string // AuditCurrentPosition 使用的品种
}

// Components 审计依赖
type Components struct {
	Venue    Venue
	Pending  PendingEvaluator
	Active   ActiveEvaluator
	Position PositionEvaluator
	Logger   *logger.Logger
	Monitor  *monitor.Monitor
}

// Auditor 风控审计入口。评估失败或 panic 一律视为不可接受
type Auditor struct {
	cfg      Config
	venue    Venue
	pending  PendingEvaluator
	active   ActiveEvaluator
	position PositionEvaluator
	logger   *logger.Logger
	monitor  *monitor.Monitor
}

// NewAuditor 创建审计器
func NewAuditor(cfg Config, comps Components) (*Auditor, error) {
	if comps.Venue == nil {
		return nil, errors.New("risk venue is required")
	}
	if comps.Pending == nil || comps.Active == nil || comps.Position == nil {
		return nil, errors.New("all three risk evaluators are required")
	}
	return &Auditor{
		cfg:      cfg,
		venue:    comps.Venue,
		pending:  comps.Pending,
		active:   comps.Active,
		position: comps.Position,
		logger:   logger.OrNop(comps.Logger).Named("risk"),
		monitor:  comps.Monitor,
	}, nil
}

// AuditPending 逐个评估挂单，返回通过的订单（已写入 Risk）；全部拒绝时返回 nil。
// 批内先通过的订单会计入后续订单看到的持仓。
func (a *Auditor) AuditPending(orders []order.PendingOrder) []order.PendingOrder {
	if len(orders) == 0 {
		return nil
	}
	snaps := make(map[string]*Snapshot)
	var accepted []order.PendingOrder

	for _, o := range orders {
		snap, err := a.snapshotFor(snaps, o.Symbol)
		if err != nil {
			o.Risk = order.Reject("snapshot: %v", err)
			a.reject("pending", o.ClientID, o.Risk)
			continue
		}
		o.Risk = a.evaluatePending(o, *snap)
		if !o.Risk.Acceptable {
			a.reject("pending", o.ClientID, o.Risk)
			continue
		}
		snap.Position.Quantity += o.SignedQty()
		if acc, ok := a.pending.(Acceptor); ok {
			acc.Accepted(o, snap.Time)
		}
		accepted = append(accepted, o)
	}
	return accepted
}

// AuditActive 逐个评估活跃订单。不可接受的订单立即请求平仓或撤单，并连同场所返回的状态一起返回；
// 可接受的订单不修改也不返回。快照失败按拒绝处理；场所调用失败时原样返回（带评估），下一轮重新评估。
func (a *Auditor) AuditActive(orders []order.ExecutedOrder) []order.ExecutedOrder {
	if len(orders) == 0 {
		return nil
	}
	snaps := make(map[string]*Snapshot)
	var flagged []order.ExecutedOrder

	for _, o := range orders {
		var assessment order.RiskAssessment
		snap, err := a.snapshotFor(snaps, o.Symbol)
		if err != nil {
			assessment = order.Reject("snapshot: %v", err)
		} else {
			assessment = a.evaluateActive(o, *snap)
		}
		if assessment.Acceptable {
			continue
		}
		a.reject("active", o.ID, assessment)

		o.Risk = assessment
		closed, err := a.venue.CloseOrCancel(o)
		if err != nil {
			a.monitor.RecordVenueError("close_or_cancel")
			a.logger.LogError(err, map[string]interface{}{"stage": "active_audit", "order_id": o.ID})
			flagged = append(flagged, o)
			continue
		}
		closed.Risk = assessment
		a.logger.LogOrder("risk_close", closed.ID, map[string]interface{}{"status": string(closed.Status)})
		flagged = append(flagged, closed)
	}
	return flagged
}

// AuditPosition 持仓闸门，只返回是否在策略范围内
func (a *Auditor) AuditPosition(pos venue.Position) bool {
	snap := Snapshot{Time: a.venue.Now(), Price: a.venue.CurrentPrice(), Position: pos}
	assessment := a.evaluatePosition(pos, snap)
	if !assessment.Acceptable {
		a.reject("position", pos.Symbol, assessment)
	}
	return assessment.Acceptable
}

// AuditCurrentPosition 从场所读取配置品种的持仓后审计；读取失败视为不可接受
func (a *Auditor) AuditCurrentPosition() bool {
	pos, err := a.venue.Position(a.cfg.Symbol)
	if err != nil {
		a.monitor.RecordVenueError("position")
		a.reject("position", a.cfg.Symbol, order.Reject("position unavailable: %v", err))
		return false
	}
	return a.AuditPosition(pos)
}

func (a *Auditor) snapshotFor(cache map[string]*Snapshot, symbol string) (*Snapshot, error) {
	if s, ok := cache[symbol]; ok {
		return s, nil
	}
	pos, err := a.venue.Position(symbol)
	if err != nil {
		a.monitor.RecordVenueError("position")
		return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	s := &Snapshot{Time: a.venue.Now(), Price: a.venue.CurrentPrice(), Position: pos}
	cache[symbol] = s
	return s, nil
}

func (a *Auditor) evaluatePending(o order.PendingOrder, snap Snapshot) (res order.RiskAssessment) {
	defer recoverInto(&res)
	res, err := a.pending.EvaluatePending(o, snap)
	return failClosed(res, err)
}

func (a *Auditor) evaluateActive(o order.ExecutedOrder, snap Snapshot) (res order.RiskAssessment) {
	defer recoverInto(&res)
	res, err := a.active.EvaluateActive(o, snap)
	return failClosed(res, err)
}

func (a *Auditor) evaluatePosition(pos venue.Position, snap Snapshot) (res order.RiskAssessment) {
	defer recoverInto(&res)
	res, err := a.position.EvaluatePosition(pos, snap)
	return failClosed(res, err)
}

func (a *Auditor) reject(stage, id string, assessment order.RiskAssessment) {
	a.monitor.RecordRiskReject(stage)
	a.logger.LogRisk("rejected", map[string]interface{}{
		"stage": stage,
		"id":    id,
		"note":  assessment.Note,
	})
}

func failClosed(res order.RiskAssessment, err error) order.RiskAssessment {
	if err != nil {
		res.Acceptable = false
		res.Note = fmt.Sprintf("evaluation failed: %v", err)
	}
	return res
}

func recoverInto(res *order.RiskAssessment) {
	if r := recover(); r != nil {
		*res = order.Reject("evaluation panic: %v", r)
	}
}
