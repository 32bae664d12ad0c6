package params

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
)

// WatchConfig 参数文件监听配置
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"` // 冷却时间，避免频繁重载
}

// DefaultWatchConfig 默认监听配置
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{Enabled: true, Cooldown: time.Second}
}

// Watcher 监听参数文件，变化时重新读取并置位 Stale 标志
type Watcher struct {
	cfg     WatchConfig
	store   *Store
	watcher *fsnotify.Watcher
	logger  *logger.Logger
	monitor *monitor.Monitor

	mu         sync.Mutex
	lastReload time.Time
	started    bool
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewWatcher 创建监听器
func NewWatcher(store *Store, cfg WatchConfig, log *logger.Logger, mon *monitor.Monitor) (*Watcher, error) {
	if store == nil || store.Path() == "" {
		return nil, fmt.Errorf("params store has no backing file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		store:    store,
		watcher:  w,
		logger:   logger.OrNop(log).Named("params_watcher"),
		monitor:  mon,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 监听文件所在目录，编辑器重命名替换文件时也能收到事件
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.Enabled {
		return nil
	}
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch params dir: %w", err)
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go w.watch(ctx)
	w.logger.Info("params watcher started", zap.String("path", w.store.Path()))
	return nil
}

// Stop 停止监听
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if started {
		select {
		case <-w.stopChan:
		default:
			close(w.stopChan)
		}
		select {
		case <-w.doneChan:
		case <-time.After(time.Second):
			w.logger.Warn("timeout waiting for params watcher")
		}
	}
	return w.watcher.Close()
}

// Health 总是健康；监听错误只记录日志
func (w *Watcher) Health() error { return nil }

// LastReload 最后一次重载时间
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneChan)
	target := filepath.Clean(w.store.Path())

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(err, map[string]interface{}{"component": "params_watcher"})
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReload) < w.cfg.Cooldown {
		return
	}
	if err := w.store.Refresh(); err != nil {
		// 保留旧参数继续运行
		w.logger.LogError(err, map[string]interface{}{"path": w.store.Path()})
		return
	}
	w.lastReload = time.Now()
	w.monitor.RecordParamsReload()
	w.logger.Info("params reloaded", zap.Int64("version", w.store.Version()))
}
