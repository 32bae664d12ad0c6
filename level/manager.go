package level

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"signal-forge-core/bus"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/schedule"
	"signal-forge-core/signal"
)

// Generator 根据当前价格产生新价位
type Generator interface {
	GenerateLevels(currentPrice float64) []Level
}

// GeneratorFunc 函数适配
type GeneratorFunc func(currentPrice float64) []Level

func (f GeneratorFunc) GenerateLevels(p float64) []Level { return f(p) }

// Processor 读取全部价位，产出新信号以及需要清除的价位
type Processor interface {
	ProcessLevels(view View, currentPrice float64) (signals []signal.TradeSignal, clear []Level)
}

// ProcessorFunc 函数适配
type ProcessorFunc func(view View, currentPrice float64) ([]signal.TradeSignal, []Level)

func (f ProcessorFunc) ProcessLevels(v View, p float64) ([]signal.TradeSignal, []Level) {
	return f(v, p)
}

// Market 价位流水线需要的平台能力。Ready 为边沿触发：每根新 bar/tick 最多返回一次 true
type Market interface {
	Ready() bool
	CurrentPrice() float64
}

// Config 价位管理配置
type Config struct {
	MaxAge       time.Duration `yaml:"maxAge"`       // >0 时每个周期顺带清理过期价位
	PollInterval time.Duration `yaml:"pollInterval"` // 异步循环未就绪时的休眠，0 表示只让出调度
}

// Components 依赖组件
type Components struct {
	Generators []Generator
	Processor  Processor
	Bus        *bus.Bus
	Scheduler  *schedule.Scheduler
	Market     Market
	Logger     *logger.Logger
	Monitor    *monitor.Monitor
}

// CycleResult 一次周期的统计
type CycleResult struct {
	Generated int
	Signals   int
	Cleared   int
	Expired   int
	Stored    int
}

// Manager 持有价位存储并驱动 生成→处理→发布→清除 周期
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	store      *Store
	generators []Generator
	processor  Processor

	bus     *bus.Bus
	sched   *schedule.Scheduler
	market  Market
	logger  *logger.Logger
	monitor *monitor.Monitor
	now     func() time.Time

	running atomic.Bool
	started bool
	done    chan struct{}
	cycles  atomic.Int64
}

// NewManager 创建价位管理器
func NewManager(cfg Config, comps Components) (*Manager, error) {
	if comps.Processor == nil {
		return nil, errors.New("level processor is required")
	}
	if comps.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if comps.Scheduler == nil {
		comps.Scheduler = schedule.New(schedule.Synchronous, comps.Logger)
	}
	if comps.Scheduler.Async() && comps.Market == nil {
		return nil, errors.New("market is required in async mode")
	}
	return &Manager{
		cfg:        cfg,
		store:      NewStore(),
		generators: append([]Generator(nil), comps.Generators...),
		processor:  comps.Processor,
		bus:        comps.Bus,
		sched:      comps.Scheduler,
		market:     comps.Market,
		logger:     logger.OrNop(comps.Logger).Named("level_manager"),
		monitor:    comps.Monitor,
		now:        time.Now,
		done:       make(chan struct{}),
	}, nil
}

// Mode 执行模式
func (m *Manager) Mode() schedule.Mode { return m.sched.Mode() }

// RunCycle 在存储锁内依次：调用所有生成器、调用一次处理器、发布信号、清除价位。
// 同步内联调用与异步循环互斥，不会交错修改同一个桶。
func (m *Manager) RunCycle(currentPrice float64) CycleResult {
	var res CycleResult

	m.mu.Lock()
	// 1. 生成
	for i, g := range m.generators {
		for _, l := range m.generate(i, g, currentPrice) {
			if l.CreatedAt.IsZero() {
				l.CreatedAt = m.now()
			}
			m.store.Add(l)
			res.Generated++
		}
	}

	// 2. 处理
	signals, clear := m.process(currentPrice)

	// 3. 发布
	for _, s := range signals {
		if m.publish(s) {
			res.Signals++
		}
	}

	// 4. 清除
	for _, l := range clear {
		if m.store.Remove(l) {
			res.Cleared++
		}
	}
	if m.cfg.MaxAge > 0 {
		res.Expired = m.store.RemoveExpired(m.now(), m.cfg.MaxAge)
	}
	res.Stored = m.store.Len()
	m.mu.Unlock()

	m.cycles.Add(1)
	m.monitor.RecordLevelCycle(res.Generated, res.Cleared+res.Expired, res.Stored)
	if res.Generated > 0 || res.Signals > 0 || res.Cleared > 0 {
		m.logger.Debug("level cycle",
			zap.Float64("price", currentPrice),
			zap.Int("generated", res.Generated),
			zap.Int("signals", res.Signals),
			zap.Int("cleared", res.Cleared),
			zap.Int("stored", res.Stored))
	}
	return res
}

// ProcessIfReady 平台就绪时执行一次周期
func (m *Manager) ProcessIfReady() (CycleResult, bool) {
	if m.market == nil || !m.market.Ready() {
		return CycleResult{}, false
	}
	return m.RunCycle(m.market.CurrentPrice()), true
}

// Start 异步模式下启动后台循环；同步模式为空操作
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if !m.sched.Async() {
		return nil
	}
	m.running.Store(true)
	if !m.sched.Go(ctx, "level-loop", m.loop) {
		m.running.Store(false)
		return errors.New("scheduler refused level loop")
	}
	m.started = true
	m.logger.Info("level loop started", zap.Duration("poll_interval", m.cfg.PollInterval))
	return nil
}

// Stop 清除运行标志并等待循环退出
func (m *Manager) Stop() error {
	m.running.Store(false)
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		return errors.New("timeout waiting for level loop")
	}
	return nil
}

// Health 异步循环意外退出视为不健康
func (m *Manager) Health() error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started && m.running.Load() {
		select {
		case <-m.done:
			return errors.New("level loop exited")
		default:
		}
	}
	return nil
}

// loop 平台就绪时运行周期，否则让出调度后继续轮询
func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	for m.running.Load() {
		if ctx.Err() != nil {
			return
		}
		if _, ran := m.ProcessIfReady(); ran {
			continue
		}
		if m.cfg.PollInterval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.PollInterval):
			}
			continue
		}
		runtime.Gosched()
	}
}

// ClearExpired 按年龄清理价位
func (m *Manager) ClearExpired(maxAge time.Duration) int {
	m.mu.Lock()
	n := m.store.RemoveExpired(m.now(), maxAge)
	m.mu.Unlock()
	return n
}

// LevelsInRange 价格范围查询
func (m *Manager) LevelsInRange(price, rng float64) []Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.InRange(price, rng)
}

// Snapshot 全部价位副本
func (m *Manager) Snapshot() []Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.All()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Len()
}

// Cycles 已执行的周期数
func (m *Manager) Cycles() int64 { return m.cycles.Load() }

func (m *Manager) generate(idx int, g Generator, price float64) (levels []Level) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogError(fmt.Errorf("level generator panic: %v", r), map[string]interface{}{
				"stage":     "level_generate",
				"generator": idx,
			})
			levels = nil
		}
	}()
	return g.GenerateLevels(price)
}

func (m *Manager) process(price float64) (signals []signal.TradeSignal, clear []Level) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogError(fmt.Errorf("level processor panic: %v", r), map[string]interface{}{
				"stage": "level_process",
			})
			signals, clear = nil, nil
		}
	}()
	return m.processor.ProcessLevels(m.store, price)
}

// publish 发布到总线，坏信号记录后丢弃
func (m *Manager) publish(s signal.TradeSignal) bool {
	if s.ID == "" {
		s.ID = signal.NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	if err := s.Validate(); err != nil {
		m.monitor.RecordSignalDropped("malformed")
		m.logger.LogError(err, map[string]interface{}{"stage": "level_publish", "signal_id": s.ID})
		return false
	}
	payload, err := signal.Encode(s)
	if err != nil {
		m.logger.LogError(err, map[string]interface{}{"stage": "level_publish", "signal_id": s.ID})
		return false
	}
	if err := m.bus.Publish(bus.Message{Topic: signal.TopicSignal, Payload: payload}); err != nil {
		m.logger.LogError(err, map[string]interface{}{"stage": "level_publish", "signal_id": s.ID})
		return false
	}
	return true
}
