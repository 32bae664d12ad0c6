package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"signal-forge-core/bus"
	"signal-forge-core/config"
	"signal-forge-core/feed"
	"signal-forge-core/filter"
	"signal-forge-core/infrastructure/alert"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/internal/engine"
	"signal-forge-core/internal/signalmgr"
	"signal-forge-core/level"
	"signal-forge-core/order"
	"signal-forge-core/params"
	"signal-forge-core/risk"
	"signal-forge-core/schedule"
	"signal-forge-core/session"
	"signal-forge-core/signal"
	"signal-forge-core/venue"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager
	sched   *schedule.Scheduler

	// 信号与价位
	bus      *bus.Bus
	registry *signal.Registry
	levels   *level.Manager
	signals  *signalmgr.Manager
	feed     *feed.Client

	// 交易场所与执行
	paper    *venue.Paper
	executor *order.Executor
	auditor  *risk.Auditor
	limits   *risk.LimitEvaluator
	stops    *risk.StopEvaluator
	exposure *risk.ExposureEvaluator

	filters    *filter.Chain
	volatility *filter.VolatilityFilter
	session    *session.Manager
	params     *params.Store
	watcher    *params.Watcher
	engine     *engine.TradeSystem

	// HTTP服务器
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
	built     bool
}

// Option 构建选项
type Option func(*Container)

// WithLogger 使用外部 logger，跳过按配置创建
func WithLogger(l *logger.Logger) Option {
	return func(c *Container) { c.logger = l }
}

// WithAlertChannel 追加告警通道
func WithAlertChannel(ch alert.Channel) Option {
	return func(c *Container) {
		if c.alerts == nil {
			c.alerts = alert.NewManager(c.cfg.Alerts.Throttle)
		}
		c.alerts.AddChannel(ch)
	}
}

// New 由已解析的配置创建容器
func New(cfg config.AppConfig, opts ...Option) (*Container, error) {
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := &Container{cfg: cfg, lifecycle: NewLifecycleManager()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromFile 读取配置文件（含环境变量覆盖）并创建容器
func NewFromFile(configPath string, opts ...Option) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return New(cfg, opts...)
}

// Build 构建所有组件
func (c *Container) Build() error {
	if c.built {
		return nil
	}
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildVenue(); err != nil {
		return fmt.Errorf("build venue failed: %w", err)
	}
	if err := c.buildSignals(); err != nil {
		return fmt.Errorf("build signals failed: %w", err)
	}
	if err := c.buildRisk(); err != nil {
		return fmt.Errorf("build risk failed: %w", err)
	}
	if err := c.buildParams(); err != nil {
		return fmt.Errorf("build params failed: %w", err)
	}
	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.built = true
	c.logger.Info("container built successfully",
		zap.String("mode", c.sched.Mode().String()),
		zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.logger == nil {
		l, err := logger.New(c.cfg.Logger)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
		c.logger = l
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	if c.alerts == nil {
		c.alerts = alert.NewManager(c.cfg.Alerts.Throttle)
	}
	c.alerts.AddChannel(alert.NewLogChannel("log", c.logger))
	c.sched = schedule.New(c.cfg.Mode, c.logger)

	c.bus = bus.New(c.cfg.Bus, c.sched, c.logger, c.monitor)
	c.registry = signal.NewRegistry(c.logger, c.monitor)
	c.bus.Subscribe(c.registry.Subscriber())

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildVenue() error {
	c.paper = venue.NewPaper(c.cfg.Paper, c.logger)

	exec, err := order.NewExecutor(c.paper, nil, c.cfg.Executor, c.logger, c.monitor)
	if err != nil {
		return err
	}
	c.executor = exec

	var cal *session.Calendar
	if c.cfg.Session.AlwaysOpen {
		cal = session.AlwaysOpen()
	} else {
		cal, err = session.NewCalendar(c.cfg.Session.Calendar)
		if err != nil {
			return err
		}
	}
	c.session, err = session.NewManager(session.Config{
		System:           c.cfg.System,
		Symbol:           c.cfg.Symbol,
		SnapshotInterval: c.cfg.Session.SnapshotInterval,
	}, cal, c.paper, nil, c.logger, c.monitor)
	if err != nil {
		return err
	}

	c.filters = filter.NewChain(c.logger)
	if w := c.cfg.Filters.TimeOfDay; w != "" {
		tod, err := filter.NewTimeOfDayFilter(w, cal.Location())
		if err != nil {
			return err
		}
		c.filters.Add(tod)
	}
	c.volatility = filter.NewVolatilityFilter(c.cfg.Filters.Volatility)
	c.filters.Add(c.volatility)
	if len(c.cfg.Symbols) > 0 {
		c.filters.Add(filter.NewConstraintFilter(c.cfg.Symbols, c.logger))
	}
	if c.cfg.Filters.MinWeight > 0 {
		c.filters.Add(filter.MinWeightFilter{Min: c.cfg.Filters.MinWeight})
	}
	if c.cfg.Filters.MaxOrders > 0 {
		c.filters.Add(filter.MaxOrdersFilter{Max: c.cfg.Filters.MaxOrders})
	}
	return nil
}

func (c *Container) buildSignals() error {
	lv := c.cfg.Levels
	levels, err := level.NewManager(lv.Config, level.Components{
		Generators: []level.Generator{level.NewRoundNumberGenerator(lv.RoundNumber)},
		Processor:  level.NewProximityProcessor(lv.Proximity),
		Bus:        c.bus,
		Scheduler:  c.sched,
		Market:     venue.NewEdgeTrigger(c.paper),
		Logger:     c.logger,
		Monitor:    c.monitor,
	})
	if err != nil {
		return err
	}
	c.levels = levels

	c.signals, err = signalmgr.New(signalmgr.Components{
		Registry:  c.registry,
		Generator: signal.NewConfirmGenerator(c.cfg.Signals, c.paper),
		Processor: signal.NewPairProcessor(c.cfg.Signals, c.logger),
		Levels:    c.levels,
		Prices:    c.paper,
		Scheduler: c.sched,
		Logger:    c.logger,
		Monitor:   c.monitor,
	})
	if err != nil {
		return err
	}

	if c.cfg.Feed.Enabled {
		c.feed, err = feed.NewClient(c.cfg.Feed, c.bus, c.logger, c.monitor)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) buildRisk() error {
	c.limits = risk.NewLimitEvaluator(c.cfg.Risk.Limits, risk.ClockFunc(c.paper.Now))
	stop := c.cfg.Risk.Stop
	if stop.Multiplier == 0 {
		stop.Multiplier = c.cfg.Paper.Multiplier
	}
	c.stops = risk.NewStopEvaluator(stop)
	c.exposure = risk.NewExposureEvaluator(c.cfg.Risk.Exposure)

	var err error
	c.auditor, err = risk.NewAuditor(risk.Config{Symbol: c.cfg.Symbol}, risk.Components{
		Venue:    c.paper,
		Pending:  risk.ChainPending(c.limits),
		Active:   risk.ChainActive(c.stops),
		Position: risk.ChainPosition(c.exposure),
		Logger:   c.logger,
		Monitor:  c.monitor,
	})
	return err
}

func (c *Container) buildParams() error {
	if c.cfg.Params.File == "" {
		c.params = params.FromMap(nil)
		return nil
	}
	store, err := params.Load(c.cfg.Params.File)
	if err != nil {
		return err
	}
	c.params = store
	// 启动时用文件中的值覆盖配置
	c.params.MarkStale()
	if c.cfg.Params.Watch.Enabled {
		c.watcher, err = params.NewWatcher(store, c.cfg.Params.Watch, c.logger, c.monitor)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) buildEngine() error {
	var err error
	c.engine, err = engine.New(engine.Config{
		System:       c.cfg.System,
		Symbol:       c.cfg.Symbol,
		TickInterval: c.cfg.Engine.TickInterval,
		Throttle:     c.cfg.Engine.Throttle,
	}, engine.Components{
		Session:         c.session,
		Venue:           c.paper,
		Signals:         c.signals,
		Auditor:         c.auditor,
		Executor:        c.executor,
		Filter:          c.filters,
		Params:          c.params,
		Reconfigurables: []params.Reconfigurable{c.limits, c.stops, c.exposure},
		Logger:          c.logger,
		Monitor:         c.monitor,
	})
	return err
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Enabled {
		c.lifecycle.Register("metrics_server", &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.watcher != nil {
		c.lifecycle.Register("params_watcher", c.watcher)
	}
	c.lifecycle.Register("bus", c.bus)
	c.lifecycle.Register("level_manager", c.levels)
	if c.feed != nil {
		c.lifecycle.Register("feed", c.feed)
	}
	c.lifecycle.Register("trade_system", c.engine)
	if c.cfg.Alerts.HealthInterval > 0 {
		c.lifecycle.Register("health_watch", newHealthWatch(c.lifecycle, c.alerts, c.cfg.Alerts.HealthInterval, c.logger))
	}
}

// Start 启动所有组件
func (c *Container) Start(ctx context.Context) error {
	if !c.built {
		return fmt.Errorf("container not built")
	}
	c.logger.Info("starting container...")
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止组件；交易系统停止时关闭会话并撤销全部挂单
func (c *Container) Stop() error {
	if !c.built {
		return nil
	}
	c.logger.Info("stopping container...")

	errs := c.lifecycle.StopAll()
	c.sched.Shutdown()
	if errs != nil {
		c.logger.LogError(errs, map[string]interface{}{"action": "stop"})
	}

	stats := c.paper.Stats()
	c.logger.Info("container stopped",
		zap.Int("trades", stats.TotalTrades),
		zap.Float64("profit", stats.Profit))
	c.logger.Close()
	return errs
}

// HealthCheck 所有组件的健康状态
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Advance 推进模拟行情：先喂给波动率熔断，再驱动交易场所
func (c *Container) Advance(bar venue.Bar) {
	if tripped, reason := c.volatility.OnTick(filter.Tick{Price: bar.Close, Ts: bar.Time}); tripped {
		c.logger.LogRisk("volatility_tripped", map[string]interface{}{"reason": reason, "price": bar.Close})
		_ = c.alerts.Warning("volatility breaker tripped", map[string]interface{}{"reason": reason})
	}
	c.paper.Advance(bar)
}

func (c *Container) Config() config.AppConfig { return c.cfg }
func (c *Container) Logger() *logger.Logger { return c.logger }
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
func (c *Container) Bus() *bus.Bus { return c.bus }
func (c *Container) Registry() *signal.Registry { return c.registry }
func (c *Container) Paper() *venue.Paper { return c.paper }
func (c *Container) Engine() *engine.TradeSystem { return c.engine }
func (c *Container) Params() *params.Store { return c.params }
func (c *Container) Limits() *risk.LimitEvaluator { return c.limits }
func (c *Container) Levels() *level.Manager { return c.levels }
func (c *Container) Lifecycle() *LifecycleManager { return c.lifecycle }
