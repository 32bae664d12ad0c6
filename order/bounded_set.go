package order

import "sync"

// boundedSet 记住最近 N 个 key，超出后淘汰最早的
type boundedSet struct {
	mu    sync.Mutex
	cap   int
	keys  map[string]struct{}
	order []string
}

func newBoundedSet(capacity int) *boundedSet {
	return &boundedSet{cap: capacity, keys: make(map[string]struct{}, capacity)}
}

func (s *boundedSet) Add(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.keys, oldest)
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
}

func (s *boundedSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}
