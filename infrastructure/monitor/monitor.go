package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
//
// 所有方法对 nil 接收者安全，未启用监控时组件可直接传 nil。
type Monitor struct {
	registry *prometheus.Registry

	// 流水线指标
	iterations       prometheus.Counter
	stageStops       *prometheus.CounterVec
	iterationLatency prometheus.Histogram
	iterationErrors  prometheus.Counter

	// 信号指标
	signalsAdded    prometheus.Counter
	signalsConsumed prometheus.Counter
	signalsDropped  *prometheus.CounterVec
	registryDepth   prometheus.Gauge

	// 价位指标
	levelCycles   prometheus.Counter
	levelsCreated prometheus.Counter
	levelsCleared prometheus.Counter
	levelsInStore prometheus.Gauge

	// 总线指标
	busPublished prometheus.Counter
	busDropped   prometheus.Counter

	// 风控指标
	riskRejects *prometheus.CounterVec

	// 订单指标
	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersRejected  prometheus.Counter
	activeOrders    prometheus.Gauge
	venueErrors     *prometheus.CounterVec

	// 系统指标
	feedMessages   *prometheus.CounterVec
	paramsReloads  prometheus.Counter
	sessionChanges *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "sfc",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例，使用私有 registry
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		iterations: counter("iterations_total", "流水线迭代总数"),
		stageStops: counterVec("stage_stops_total", "按阶段统计的迭代短路次数", "stage"),
		iterationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "iteration_latency_seconds",
			Help:      "单次迭代耗时分布（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		iterationErrors: counter("iteration_errors_total", "在迭代边界捕获的错误数"),

		signalsAdded:    counter("signals_added_total", "加入注册表的信号数"),
		signalsConsumed: counter("signals_consumed_total", "被处理器消费的信号数"),
		signalsDropped:  counterVec("signals_dropped_total", "被丢弃的信号数", "reason"),
		registryDepth:   gauge("signal_registry_depth", "注册表中待处理信号数"),

		levelCycles:   counter("level_cycles_total", "价位生成-处理-清除周期数"),
		levelsCreated: counter("levels_created_total", "生成的价位数"),
		levelsCleared: counter("levels_cleared_total", "清除的价位数"),
		levelsInStore: gauge("levels_in_store", "当前存储中的价位数"),

		busPublished: counter("bus_published_total", "总线发布消息数"),
		busDropped:   counter("bus_dropped_total", "总线队列满丢弃的消息数"),

		riskRejects: counterVec("risk_rejects_total", "按审计类型统计的风控拒绝数", "audit"),

		ordersSubmitted: counter("orders_submitted_total", "提交到交易场所的订单数"),
		ordersFilled:    counter("orders_filled_total", "完全成交的订单数"),
		ordersRejected:  counter("orders_rejected_total", "交易场所拒绝或失败的订单数"),
		activeOrders:    gauge("active_orders", "活跃订单表大小"),
		venueErrors:     counterVec("venue_errors_total", "交易场所调用失败数", "op"),

		feedMessages:   counterVec("feed_messages_total", "信号推送消息数", "result"),
		paramsReloads:  counter("params_reloads_total", "参数变更触发的重新初始化次数"),
		sessionChanges: counterVec("session_changes_total", "交易会话开启/关闭次数", "change"),
	}
}

// RecordIteration 记录一次迭代及其耗时
func (m *Monitor) RecordIteration(seconds float64) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	m.iterationLatency.Observe(seconds)
}

// RecordStageStop 记录迭代在某阶段短路
func (m *Monitor) RecordStageStop(stage string) {
	if m == nil {
		return
	}
	m.stageStops.WithLabelValues(stage).Inc()
}

// RecordIterationError 记录迭代边界捕获的错误
func (m *Monitor) RecordIterationError() {
	if m == nil {
		return
	}
	m.iterationErrors.Inc()
}

func (m *Monitor) RecordSignalAdded() {
	if m == nil {
		return
	}
	m.signalsAdded.Inc()
}

func (m *Monitor) RecordSignalsConsumed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.signalsConsumed.Add(float64(n))
}

func (m *Monitor) RecordSignalDropped(reason string) {
	if m == nil {
		return
	}
	m.signalsDropped.WithLabelValues(reason).Inc()
}

func (m *Monitor) UpdateRegistryDepth(n int) {
	if m == nil {
		return
	}
	m.registryDepth.Set(float64(n))
}

// RecordLevelCycle 记录一次价位周期的生成与清除数量
func (m *Monitor) RecordLevelCycle(created, cleared, stored int) {
	if m == nil {
		return
	}
	m.levelCycles.Inc()
	m.levelsCreated.Add(float64(created))
	m.levelsCleared.Add(float64(cleared))
	m.levelsInStore.Set(float64(stored))
}

func (m *Monitor) RecordBusPublished() {
	if m == nil {
		return
	}
	m.busPublished.Inc()
}

func (m *Monitor) RecordBusDropped() {
	if m == nil {
		return
	}
	m.busDropped.Inc()
}

// RecordRiskReject audit 取 pending/active/position
func (m *Monitor) RecordRiskReject(audit string) {
	if m == nil {
		return
	}
	m.riskRejects.WithLabelValues(audit).Inc()
}

func (m *Monitor) RecordOrderSubmitted() {
	if m == nil {
		return
	}
	m.ordersSubmitted.Inc()
}

func (m *Monitor) RecordOrderFilled() {
	if m == nil {
		return
	}
	m.ordersFilled.Inc()
}

func (m *Monitor) RecordOrderRejected() {
	if m == nil {
		return
	}
	m.ordersRejected.Inc()
}

func (m *Monitor) UpdateActiveOrders(n int) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(n))
}

func (m *Monitor) RecordVenueError(op string) {
	if m == nil {
		return
	}
	m.venueErrors.WithLabelValues(op).Inc()
}

// RecordFeedMessage result 取 accepted/malformed/rejected
func (m *Monitor) RecordFeedMessage(result string) {
	if m == nil {
		return
	}
	m.feedMessages.WithLabelValues(result).Inc()
}

func (m *Monitor) RecordParamsReload() {
	if m == nil {
		return
	}
	m.paramsReloads.Inc()
}

// RecordSessionChange change 取 open/close
func (m *Monitor) RecordSessionChange(change string) {
	if m == nil {
		return
	}
	m.sessionChanges.WithLabelValues(change).Inc()
}

// Handler 返回HTTP处理器用于Prometheus抓取
func (m *Monitor) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回Prometheus注册表
func (m *Monitor) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
