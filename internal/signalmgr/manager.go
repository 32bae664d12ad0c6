// Package signalmgr 每轮迭代把信号变成待发订单：生成信号、同步模式下跑一次价位周期、配对解析、移除已消费信号。
package signalmgr

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/level"
	"signal-forge-core/order"
	"signal-forge-core/schedule"
	"signal-forge-core/signal"
)

// PriceSource 同步价位周期使用的当前价
type PriceSource interface {
	CurrentPrice() float64
}

// Components 依赖组件
type Components struct {
	Registry  *signal.Registry
	Generator signal.Generator
	Processor signal.Processor
	Levels    *level.Manager // 可选
	Prices    PriceSource    // Levels 不为空时必填
	Scheduler *schedule.Scheduler
	Logger    *logger.Logger
	Monitor   *monitor.Monitor
}

// Manager 信号编排
type Manager struct {
	registry  *signal.Registry
	generator signal.Generator
	processor signal.Processor
	levels    *level.Manager
	prices    PriceSource
	mode      schedule.Mode
	logger    *logger.Logger
	monitor   *monitor.Monitor
}

func New(comps Components) (*Manager, error) {
	if comps.Registry == nil {
		return nil, errors.New("signal registry is required")
	}
	if comps.Processor == nil {
		return nil, errors.New("signal processor is required")
	}
	if comps.Levels != nil && comps.Prices == nil {
		return nil, errors.New("price source is required with a level manager")
	}
	if comps.Generator == nil {
		comps.Generator = signal.NopGenerator{}
	}
	mode := schedule.Synchronous
	if comps.Scheduler != nil {
		mode = comps.Scheduler.Mode()
	}
	return &Manager{
		registry:  comps.Registry,
		generator: comps.Generator,
		processor: comps.Processor,
		levels:    comps.Levels,
		prices:    comps.Prices,
		mode:      mode,
		logger:    logger.OrNop(comps.Logger).Named("signal_manager"),
		monitor:   comps.Monitor,
	}, nil
}

// Registry 共享的信号注册表
func (m *Manager) Registry() *signal.Registry { return m.registry }

// GenerateOrders 返回 nil 表示本轮没有订单，不是错误
func (m *Manager) GenerateOrders() []order.PendingOrder {
	// 1. 新信号入表
	added := 0
	for _, s := range m.generate() {
		if err := m.registry.Add(s); err != nil {
			m.logger.LogSignal("add_failed", s.ID, map[string]interface{}{"error": err.Error()})
			continue
		}
		added++
	}

	// 2. 同步模式下让价位产生的信号在本轮可见
	levelSignals := 0
	if m.mode == schedule.Synchronous && m.levels != nil {
		levelSignals = m.levels.RunCycle(m.prices.CurrentPrice()).Signals
	}

	// 3. 解析
	orders, consumed := m.process()

	// 4. 移除已消费
	removed := 0
	for _, id := range consumed {
		if m.registry.RemoveByID(id) {
			removed++
		}
	}
	m.monitor.RecordSignalsConsumed(removed)
	m.monitor.UpdateRegistryDepth(m.registry.Len())

	if added > 0 || levelSignals > 0 || len(orders) > 0 || removed > 0 {
		m.logger.Debug("generate orders",
			zap.Int("added", added),
			zap.Int("level_signals", levelSignals),
			zap.Int("orders", len(orders)),
			zap.Int("consumed", removed),
			zap.Int("queued", m.registry.Len()))
	}
	if len(orders) == 0 {
		return nil
	}
	return orders
}

func (m *Manager) generate() (out []signal.TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogError(fmt.Errorf("signal generator panic: %v", r), nil)
			out = nil
		}
	}()
	return m.generator.Generate(m.registry)
}

func (m *Manager) process() (orders []order.PendingOrder, consumed []string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.LogError(fmt.Errorf("signal processor panic: %v", r), nil)
			orders, consumed = nil, nil
		}
	}()
	return m.processor.Process(m.registry)
}
