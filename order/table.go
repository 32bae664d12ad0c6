package order

import (
	"errors"
	"sort"
	"sync"
)

var ErrDuplicateOrder = errors.New("duplicate order id")

// ActiveTable 活跃订单表，按订单 ID 唯一
type ActiveTable struct {
	mu     sync.RWMutex
	orders map[string]ExecutedOrder
}

func NewActiveTable() *ActiveTable {
	return &ActiveTable{orders: make(map[string]ExecutedOrder)}
}

// Upsert 插入或覆盖
func (t *ActiveTable) Upsert(o ExecutedOrder) {
	t.mu.Lock()
	t.orders[o.ID] = o
	t.mu.Unlock()
}

// Insert 仅插入新 ID，已存在则返回 ErrDuplicateOrder 且不改动表
func (t *ActiveTable) Insert(o ExecutedOrder) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	t.orders[o.ID] = o
	return nil
}

// Remove 删除，返回是否存在
func (t *ActiveTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.orders[id]
	delete(t.orders, id)
	return ok
}

func (t *ActiveTable) Get(id string) (ExecutedOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[id]
	return o, ok
}

// List 按入场时间、ID 排序的副本
func (t *ActiveTable) List() []ExecutedOrder {
	t.mu.RLock()
	out := make([]ExecutedOrder, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *ActiveTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}
