package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"signal-forge-core/filter"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/internal/assert"
	"signal-forge-core/order"
	"signal-forge-core/params"
)

var (
	ErrReentrant      = errors.New("trade system iteration already in progress")
	ErrIterationPanic = errors.New("trade system iteration panicked")
)

// EngineState 系统状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Session 交易时段闸门
type Session interface {
	Manage(now time.Time) bool
	Close(now time.Time) error
}

// Venue 编排需要的交易场所能力
type Venue interface {
	Ready() bool
	Now() time.Time
	CurrentPrice() float64
	CancelAll() error
}

// OrderSource 信号编排
type OrderSource interface {
	GenerateOrders() []order.PendingOrder
}

// Auditor 风控审计
type Auditor interface {
	AuditActive(orders []order.ExecutedOrder) []order.ExecutedOrder
	AuditCurrentPosition() bool
	AuditPending(orders []order.PendingOrder) []order.PendingOrder
}

// Executor 订单执行与对账
type Executor interface {
	Submit(pending []order.PendingOrder) []order.ExecutedOrder
	Reconcile(active []order.ExecutedOrder) []order.ExecutedOrder
}

// Filter 挂单过滤
type Filter interface {
	Apply(ctx filter.Context, orders []order.PendingOrder) []order.PendingOrder
}

// ParamStore 参数存储及其变更标志
type ParamStore interface {
	params.Reader
	Stale() bool
	ClearStale()
}

// Config 系统配置
type Config struct {
	System       string
	Symbol       string
	TickInterval time.Duration // 触发循环周期
	Throttle     time.Duration // 两次迭代最小间隔，0 表示不限
}

// Components 系统依赖组件
type Components struct {
	Session         Session
	Venue           Venue
	Signals         OrderSource
	Auditor         Auditor
	Executor        Executor
	Filter          Filter // 可选
	Params          ParamStore
	Reconfigurables []params.Reconfigurable
	Logger          *logger.Logger
	Monitor         *monitor.Monitor
}

// TradeSystem 每轮迭代按固定顺序执行八个阶段，任一阶段可以提前结束本轮
type TradeSystem struct {
	config Config

	session  Session
	venue    Venue
	signals  OrderSource
	auditor  Auditor
	executor Executor
	filter   Filter
	params   ParamStore
	reconf   []params.Reconfigurable
	logger   *logger.Logger
	monitor  *monitor.Monitor

	active      *order.ActiveTable
	states      *order.StateMachine
	processing  atomic.Bool
	lastTrigger time.Time // 只在迭代内读写

	// 状态
	state EngineState
	mu    sync.RWMutex

	// 控制通道
	stopChan chan struct{}
	doneChan chan struct{}

	iterations atomic.Int64
	errors     atomic.Int64
}

// New 创建交易系统
func New(cfg Config, components Components) (*TradeSystem, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &TradeSystem{
		config:   cfg,
		session:  components.Session,
		venue:    components.Venue,
		signals:  components.Signals,
		auditor:  components.Auditor,
		executor: components.Executor,
		filter:   components.Filter,
		params:   components.Params,
		reconf:   append([]params.Reconfigurable(nil), components.Reconfigurables...),
		logger:   logger.OrNop(components.Logger).Named("trade_system"),
		monitor:  components.Monitor,
		active:   order.NewActiveTable(),
		states:   order.NewStateMachine(),
		state:    StateIdle,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Process 执行一轮迭代。并发调用第二个立即返回 ErrReentrant；
// 协作组件的 panic 在这里被捕获并作为错误返回。
func (e *TradeSystem) Process(ctx context.Context) (out Outcome, err error) {
	if !e.processing.CompareAndSwap(false, true) {
		return Outcome{}, ErrReentrant
	}
	defer e.processing.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrIterationPanic, r)
			out.StoppedAt = StagePanic
		}
		if err != nil {
			e.errors.Add(1)
			e.monitor.RecordIterationError()
			e.logger.LogError(err, map[string]interface{}{"stage": out.StoppedAt.String()})
		}
		out.Duration = time.Since(start)
		e.iterations.Add(1)
		e.monitor.RecordIteration(out.Duration.Seconds())
		e.monitor.UpdateActiveOrders(e.active.Len())
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{StoppedAt: StageCancelled}, err
	}
	e.reconfigureIfStale()
	return e.iterate(), nil
}

func (e *TradeSystem) iterate() Outcome {
	var out Outcome
	now := e.venue.Now()

	// 1. 交易时段
	if !e.session.Manage(now) {
		return e.stop(out, StageSession, "outside trading window")
	}
	if !e.venue.Ready() {
		return e.stop(out, StageSession, "venue not ready")
	}
	if e.config.Throttle > 0 && !e.lastTrigger.IsZero() && now.Sub(e.lastTrigger) < e.config.Throttle {
		return e.stop(out, StageSession, "throttled")
	}
	e.lastTrigger = now

	// 2. 活跃订单风控
	flagged := e.auditor.AuditActive(e.active.List())
	for _, o := range flagged {
		if o.IsTerminal() || o.IsClosed() {
			e.active.Remove(o.ID)
			continue
		}
		e.active.Upsert(o)
	}
	out.RiskFlagged = len(flagged)

	// 3. 对账
	changed := e.executor.Reconcile(e.active.List())
	for _, o := range changed {
		if e.states.IsFinalState(o.Status) {
			e.active.Remove(o.ID)
			continue
		}
		e.active.Upsert(o)
	}
	out.Reconciled = len(changed)

	// 4. 生成挂单
	pending := e.signals.GenerateOrders()
	out.Generated = len(pending)
	if len(pending) == 0 {
		return e.stop(out, StageGenerate, "no pending orders")
	}

	// 5. 持仓闸门
	if !e.auditor.AuditCurrentPosition() {
		e.logger.LogRisk("position_gate_closed", map[string]interface{}{"pending": len(pending)})
		return e.stop(out, StagePositionGate, "position risk unacceptable")
	}

	// 6. 挂单风控
	accepted := e.auditor.AuditPending(pending)
	out.Accepted = len(accepted)
	if len(accepted) == 0 {
		return e.stop(out, StagePendingAudit, "no pending order accepted")
	}

	// 7. 过滤
	filtered := accepted
	if e.filter != nil {
		filtered = e.filter.Apply(filter.Context{Now: now, Price: e.venue.CurrentPrice()}, accepted)
	}
	out.Filtered = len(filtered)
	if len(filtered) == 0 {
		return e.stop(out, StageFilter, "all orders filtered")
	}

	// 8. 执行
	executed := e.executor.Submit(filtered)
	for _, o := range executed {
		if err := e.active.Insert(o); err != nil {
			assert.Violation(e.logger, "duplicate active order id", map[string]interface{}{"order_id": o.ID})
			continue
		}
		out.Executed++
		e.logger.LogOrder("active", o.ID, map[string]interface{}{
			"status": string(o.Status),
			"filled": o.FilledQty,
			"price":  o.FillPrice,
		})
	}
	if out.Executed == 0 {
		return e.stop(out, StageExecute, "nothing executed")
	}
	out.StoppedAt = StageComplete
	return out
}

func (e *TradeSystem) stop(out Outcome, stage Stage, reason string) Outcome {
	out.StoppedAt = stage
	out.Reason = reason
	e.monitor.RecordStageStop(stage.String())
	e.logger.LogStage(stage.String(), reason, nil)
	return out
}

// reconfigureIfStale 参数变更后重新初始化所有可重配组件
func (e *TradeSystem) reconfigureIfStale() {
	if e.params == nil || !e.params.Stale() {
		return
	}
	var errs error
	for _, r := range e.reconf {
		errs = multierr.Append(errs, r.Reconfigure(e.params))
	}
	e.params.ClearStale()
	if errs != nil {
		e.logger.LogError(errs, map[string]interface{}{"stage": "reconfigure"})
		return
	}
	e.logger.Info("components reconfigured", zap.Int("count", len(e.reconf)))
}

// ActiveOrders 活跃订单表副本
func (e *TradeSystem) ActiveOrders() []order.ExecutedOrder {
	return e.active.List()
}

// Start 启动触发循环
func (e *TradeSystem) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("trade system already started (state: %s)", e.state)
	}
	// 如果从 StateStopped 复启，需要重建通道
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.Info("Trade system starting",
		zap.String("system", e.config.System),
		zap.String("symbol", e.config.Symbol),
		zap.Duration("tick_interval", e.config.TickInterval),
		zap.Duration("throttle", e.config.Throttle))

	go e.run(ctx)
	return nil
}

// Stop 停止循环，关闭会话并撤销所有挂单
func (e *TradeSystem) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.logger.Info("Trade system stopping...")

	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	select {
	case <-e.doneChan:
	case <-time.After(10 * time.Second):
		e.logger.Warn("Timeout waiting for trade system to stop")
	}

	var errs error
	errs = multierr.Append(errs, e.session.Close(e.venue.Now()))
	errs = multierr.Append(errs, e.venue.CancelAll())
	if errs != nil {
		e.logger.Error("Shutdown incomplete", zap.Error(errs))
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.logger.Info("Trade system stopped")
	return errs
}

// Health 运行中为健康
func (e *TradeSystem) Health() error {
	if s := e.GetState(); s != StateRunning {
		return fmt.Errorf("trade system not running (state: %s)", s)
	}
	return nil
}

// GetState 获取系统状态
func (e *TradeSystem) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Iterations 已执行的迭代次数与出错次数
func (e *TradeSystem) Iterations() (total, failed int64) {
	return e.iterations.Load(), e.errors.Load()
}

// run 主事件循环
func (e *TradeSystem) run(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping trade system")
			return
		case <-e.stopChan:
			e.logger.Info("Stop signal received")
			return
		case <-ticker.C:
			// 错误已在 Process 内记录，循环继续
			_, _ = e.Process(ctx)
		}
	}
}

func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.TickInterval < 0 {
		return errors.New("tick_interval must be >= 0")
	}
	if cfg.Throttle < 0 {
		return errors.New("throttle must be >= 0")
	}
	return nil
}

func validateComponents(comp Components) error {
	if comp.Session == nil {
		return errors.New("session is required")
	}
	if comp.Venue == nil {
		return errors.New("venue is required")
	}
	if comp.Signals == nil {
		return errors.New("signal source is required")
	}
	if comp.Auditor == nil {
		return errors.New("auditor is required")
	}
	if comp.Executor == nil {
		return errors.New("executor is required")
	}
	return nil
}
