package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"signal-forge-core/infrastructure/alert"
	"signal-forge-core/infrastructure/logger"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager 生命周期管理器，按注册顺序启动、逆序停止
type LifecycleManager struct {
	components []namedComponent
	mu         sync.RWMutex
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		components: make([]namedComponent, 0),
	}
}

// Register 注册组件
func (m *LifecycleManager) Register(name string, component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: component})
}

// Names 已注册组件名，按启动顺序
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.name)
	}
	return names
}

// StartAll 按顺序启动所有组件
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, component := range m.components {
		if err := component.Start(ctx); err != nil {
			// 启动失败，回滚已启动的组件
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			return fmt.Errorf("start %s failed: %w", component.name, err)
		}
	}
	return nil
}

// StopAll 逆序停止所有组件，汇总全部错误
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	for i := len(m.components) - 1; i >= 0; i-- {
		c := m.components[i]
		if err := c.Stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", c.name, err))
		}
	}
	return errs
}

// CheckHealth 检查所有组件健康状态，返回第一个不健康的组件
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, component := range m.components {
		if err := component.Health(); err != nil {
			return fmt.Errorf("component %s unhealthy: %w", component.name, err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  **http.Server
	started bool
	failed  error
	mu      sync.Mutex
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%s listen on %s: %w", h.name, h.addr, err)
	}
	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	*h.server = srv

	// 在后台启动服务器
	go func() {
		h.logger.Info(fmt.Sprintf("%s listening on %s", h.name, ln.Addr()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "serve",
			})
			h.mu.Lock()
			h.failed = err
			h.mu.Unlock()
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || *h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := (*h.server).Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info(fmt.Sprintf("%s stopped", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failed != nil {
		return h.failed
	}
	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// healthWatch 周期巡检其余组件，不健康时发送告警
type healthWatch struct {
	lifecycle *LifecycleManager
	alerts    *alert.Manager
	interval  time.Duration
	logger    *logger.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

func newHealthWatch(lm *LifecycleManager, alerts *alert.Manager, interval time.Duration, log *logger.Logger) *healthWatch {
	return &healthWatch{lifecycle: lm, alerts: alerts, interval: interval, logger: logger.OrNop(log).Named("health_watch")}
}

func (w *healthWatch) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopChan != nil {
		return nil
	}
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	go w.run(ctx, w.stopChan, w.doneChan)
	return nil
}

func (w *healthWatch) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *healthWatch) check() {
	err := w.lifecycle.CheckHealth()
	if err == nil {
		return
	}
	if sendErr := w.alerts.Critical("component unhealthy", map[string]interface{}{"error": err.Error()}); sendErr != nil {
		w.logger.Warn("alert delivery failed", zap.Error(sendErr))
	}
}

func (w *healthWatch) Stop() error {
	w.mu.Lock()
	stop, done := w.stopChan, w.doneChan
	w.stopChan, w.doneChan = nil, nil
	w.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Health 巡检自身总是健康
func (w *healthWatch) Health() error { return nil }
