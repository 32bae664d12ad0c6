// Package schedule 提供唯一的执行模式与调度抽象。
//
// 同步模式下所有工作由调用方线程内联完成；异步模式下后台任务交给
// Scheduler 托管的 goroutine，Shutdown 时协作取消并 join。
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"signal-forge-core/infrastructure/logger"
)

// Mode 执行模式，构造时确定
type Mode int

const (
	// Synchronous 调用方线程内联执行
	Synchronous Mode = iota
	// Asynchronous 交给后台任务
	Asynchronous
)

// String 返回模式名称
func (m Mode) String() string {
	switch m {
	case Synchronous:
		return "sync"
	case Asynchronous:
		return "async"
	default:
		return "unknown"
	}
}

// ParseMode 解析配置中的模式字符串
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync", "synchronous":
		return Synchronous, nil
	case "async", "asynchronous":
		return Asynchronous, nil
	default:
		return Synchronous, fmt.Errorf("unknown execution mode %q", s)
	}
}

// UnmarshalYAML 支持在配置里直接写 sync/async
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scheduler 托管后台任务
type Scheduler struct {
	mode   Mode
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New 创建调度器
func New(mode Mode, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		mode:   mode,
		logger: logger.OrNop(log).Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Mode 返回执行模式
func (s *Scheduler) Mode() Mode { return s.mode }

// Async 是否异步模式
func (s *Scheduler) Async() bool { return s.mode == Asynchronous }

// Go 在异步模式下启动一个后台任务并返回 true。
// 同步模式或已关闭时返回 false，调用方应改为内联执行。
// parent 取消或 Shutdown 都会让任务的 ctx 结束。
func (s *Scheduler) Go(parent context.Context, name string, task func(ctx context.Context)) bool {
	if s.mode != Asynchronous || s.closed.Load() {
		return false
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.LogError(fmt.Errorf("task panic: %v", r), map[string]interface{}{"task": name})
			}
		}()
		s.logger.Debug("task started: " + name)
		task(ctx)
		s.logger.Debug("task finished: " + name)
	}()
	return true
}

// Shutdown 取消所有后台任务并等待退出，可重复调用
func (s *Scheduler) Shutdown() {
	s.closed.Store(true)
	s.cancel()
	s.wg.Wait()
}
