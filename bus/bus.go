// Package bus 进程内单写多读消息总线。
//
// 同步模式下 Publish 在调用方线程按注册顺序扇出；异步模式下消息进入
// 有界队列，由一个分发 goroutine 按注册顺序扇出。队列满时丢弃最旧的
// 消息并计数，Publish 永不阻塞。Close 会先排空队列再停止分发。
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/schedule"
)

// DefaultCapacity 默认队列容量
const DefaultCapacity = 1024

var (
	ErrClosed = errors.New("bus closed")
)

// Message 总线上传递的消息
type Message struct {
	Topic       string
	Payload     []byte
	PublishedAt time.Time
}

// Handler 订阅回调
type Handler func(Message)

// Config 总线配置
type Config struct {
	Capacity int `yaml:"capacity"`
}

// Stats 总线统计
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
	Queued    int
}

// Bus 消息总线
type Bus struct {
	sched    *schedule.Scheduler
	logger   *logger.Logger
	monitor  *monitor.Monitor
	capacity int

	mu      sync.Mutex
	subs    []Handler
	queue   []Message
	closed  bool
	started bool

	wake chan struct{}
	done chan struct{}

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New 创建总线，执行模式取自调度器
func New(cfg Config, sched *schedule.Scheduler, log *logger.Logger, mon *monitor.Monitor) *Bus {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if sched == nil {
		sched = schedule.New(schedule.Synchronous, log)
	}
	return &Bus{
		sched:    sched,
		logger:   logger.OrNop(log).Named("bus"),
		monitor:  mon,
		capacity: cfg.Capacity,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Subscribe 注册订阅者，投递顺序即注册顺序
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, h)
	b.mu.Unlock()
}

// Publish 发布消息
func (b *Bus) Publish(msg Message) error {
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.published.Add(1)
	b.monitor.RecordBusPublished()

	if !b.sched.Async() {
		subs := b.subs
		b.mu.Unlock()
		b.deliver(subs, msg)
		return nil
	}

	if len(b.queue) >= b.capacity {
		oldest := b.queue[0]
		b.queue = b.queue[1:]
		b.dropped.Add(1)
		b.monitor.RecordBusDropped()
		b.logger.Warn("bus queue full, dropping oldest message",
			zap.String("topic", oldest.Topic), zap.Int("capacity", b.capacity))
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start 异步模式下启动分发 goroutine，同步模式为空操作
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.started = b.sched.Go(ctx, "bus-dispatch", b.dispatch)
	b.mu.Unlock()
	return nil
}

// Stop 等同 Close
func (b *Bus) Stop() error {
	b.Close()
	return nil
}

// Health 分发器退出但未关闭视为不健康
func (b *Bus) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started && !b.closed {
		select {
		case <-b.done:
			return fmt.Errorf("bus dispatcher exited")
		default:
		}
	}
	return nil
}

// Close 停止接收新消息，排空队列后停止分发
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	if !started {
		// 从未启动分发器，在调用方线程排空
		b.drain()
		return
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
	// 分发器因 ctx 取消提前退出后仍可能有新消息入队
	b.drain()
}

// Stats 返回统计快照
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	queued := len(b.queue)
	b.mu.Unlock()
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Queued:    queued,
	}
}

func (b *Bus) dispatch(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case <-b.wake:
		}

		b.drain()

		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if closed {
			b.drain()
			return
		}
	}
}

// drain 处理当前队列中的全部消息
func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		subs := b.subs
		b.mu.Unlock()

		b.deliver(subs, msg)
	}
}

func (b *Bus) deliver(subs []Handler, msg Message) {
	for i, h := range subs {
		b.safeCall(i, h, msg)
	}
	b.delivered.Add(1)
}

func (b *Bus) safeCall(idx int, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.LogError(fmt.Errorf("subscriber panic: %v", r), map[string]interface{}{
				"topic":      msg.Topic,
				"subscriber": idx,
			})
		}
	}()
	h(msg)
}
