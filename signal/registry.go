package signal

import (
	"fmt"
	"sort"
	"sync"

	"signal-forge-core/bus"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/internal/assert"
)

// View 信号的只读视图，供生成器和处理器使用
type View interface {
	Lookup(id string) (TradeSignal, bool)
	Peek(key string) (TradeSignal, bool)
	Pending(key string) []TradeSignal
	Keys() []string
}

// Registry 待处理信号注册表：每个 key 一个 FIFO 队列，外加 ID 索引。
// 两个索引在同一把锁内一起修改。
type Registry struct {
	mu     sync.Mutex
	queues map[string][]string
	byID   map[string]TradeSignal

	logger  *logger.Logger
	monitor *monitor.Monitor
}

func NewRegistry(log *logger.Logger, mon *monitor.Monitor) *Registry {
	return &Registry{
		queues:  make(map[string][]string),
		byID:    make(map[string]TradeSignal),
		logger:  logger.OrNop(log).Named("signal_registry"),
		monitor: mon,
	}
}

// Add 同时写入 key 队列与 ID 索引
func (r *Registry) Add(s TradeSignal) error {
	if s.ID == "" || s.Key == "" {
		return fmt.Errorf("%w: id and key are required", ErrInvalidSignal)
	}

	r.mu.Lock()
	if _, dup := r.byID[s.ID]; dup {
		r.mu.Unlock()
		assert.Violation(r.logger, "duplicate signal id", map[string]interface{}{
			"signal_id": s.ID,
			"key":       s.Key,
		})
		r.monitor.RecordSignalDropped("duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicateSignal, s.ID)
	}
	r.byID[s.ID] = s
	r.queues[s.Key] = append(r.queues[s.Key], s.ID)
	depth := len(r.byID)
	r.mu.Unlock()

	r.monitor.RecordSignalAdded()
	r.monitor.UpdateRegistryDepth(depth)
	return nil
}

// TakeNext 弹出某 key 最早的信号，并从 ID 索引中移除
func (r *Registry) TakeNext(key string) (TradeSignal, bool) {
	var orphans []string

	r.mu.Lock()
	var (
		out   TradeSignal
		found bool
	)
	q := r.queues[key]
	for len(q) > 0 {
		id := q[0]
		q = q[1:]
		s, ok := r.byID[id]
		if !ok {
			orphans = append(orphans, id)
			continue
		}
		delete(r.byID, id)
		out, found = s, true
		break
	}
	r.setQueueLocked(key, q)
	depth := len(r.byID)
	r.mu.Unlock()

	for _, id := range orphans {
		assert.Violation(r.logger, "queued signal missing from id index", map[string]interface{}{
			"signal_id": id,
			"key":       key,
		})
	}
	if found {
		r.monitor.UpdateRegistryDepth(depth)
	}
	return out, found
}

// Lookup 按 ID 查询，不修改
func (r *Registry) Lookup(id string) (TradeSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Peek 查看某 key 最早的信号，不修改
func (r *Registry) Peek(key string) (TradeSignal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.queues[key] {
		if s, ok := r.byID[id]; ok {
			return s, true
		}
	}
	return TradeSignal{}, false
}

// Pending 按 FIFO 顺序返回某 key 的所有信号副本
func (r *Registry) Pending(key string) []TradeSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.queues[key]
	if len(ids) == 0 {
		return nil
	}
	out := make([]TradeSignal, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RemoveByID 从两个索引中移除，重建所属队列并保持其余信号的相对顺序
func (r *Registry) RemoveByID(id string) bool {
	r.mu.Lock()
	s, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, id)

	q := r.queues[s.Key]
	rebuilt := make([]string, 0, len(q))
	inQueue := false
	for _, qid := range q {
		if qid == id {
			inQueue = true
			continue
		}
		rebuilt = append(rebuilt, qid)
	}
	r.setQueueLocked(s.Key, rebuilt)
	depth := len(r.byID)
	r.mu.Unlock()

	if !inQueue {
		assert.Violation(r.logger, "indexed signal missing from its queue", map[string]interface{}{
			"signal_id": id,
			"key":       s.Key,
		})
	}
	r.monitor.UpdateRegistryDepth(depth)
	return true
}

// RemoveAllForKey 清空某 key 的队列，返回移除数量
func (r *Registry) RemoveAllForKey(key string) int {
	r.mu.Lock()
	q := r.queues[key]
	removed := 0
	for _, id := range q {
		if _, ok := r.byID[id]; ok {
			delete(r.byID, id)
			removed++
		}
	}
	delete(r.queues, key)
	depth := len(r.byID)
	r.mu.Unlock()

	r.monitor.UpdateRegistryDepth(depth)
	return removed
}

// Len 信号总数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Keys 有待处理信号的 key，已排序
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.queues))
	for k := range r.queues {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Subscriber 返回总线订阅回调：解码信号消息并加入注册表，坏数据记录后丢弃
func (r *Registry) Subscriber() bus.Handler {
	return func(msg bus.Message) {
		if msg.Topic != TopicSignal {
			return
		}
		s, err := Decode(msg.Payload)
		if err != nil {
			r.monitor.RecordSignalDropped("malformed")
			r.logger.LogError(err, map[string]interface{}{
				"stage": "signal_ingest",
				"topic": msg.Topic,
			})
			return
		}
		if err := r.Add(s); err != nil {
			r.logger.LogSignal("add_failed", s.ID, map[string]interface{}{"error": err.Error()})
			return
		}
		r.logger.LogSignal("added", s.ID, map[string]interface{}{"key": s.Key, "source": "bus"})
	}
}

func (r *Registry) setQueueLocked(key string, q []string) {
	if len(q) == 0 {
		delete(r.queues, key)
		return
	}
	r.queues[key] = q
}
