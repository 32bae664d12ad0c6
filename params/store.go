// Package params 策略参数存储：按 key 读取的不透明访问器，外加"配置已变更"标志。
package params

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Reader 按 key 读取参数，缺失或类型不符时返回默认值
type Reader interface {
	Get(key string) (interface{}, bool)
	String(key, def string) string
	Float(key string, def float64) float64
	Int(key string, def int) int
	Bool(key string, def bool) bool
	Duration(key string, def time.Duration) time.Duration
}

// Reconfigurable 配置变更后需要重新初始化的组件
type Reconfigurable interface {
	Reconfigure(r Reader) error
}

// Store 参数存储。嵌套 YAML 展平为点分 key，例如 risk.singleMax
type Store struct {
	path    string
	mu      sync.RWMutex
	values  map[string]interface{}
	stale   atomic.Bool
	version atomic.Int64
}

// Load 从 YAML 文件加载
func Load(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]interface{})}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	// 首次加载不算变更
	s.stale.Store(false)
	return s, nil
}

// FromMap 由内存键值构造，测试和默认值使用
func FromMap(values map[string]interface{}) *Store {
	s := &Store{values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Refresh 重新读取文件并标记为已变更；内存构造的存储无操作
func (s *Store) Refresh() error {
	if s.path == "" {
		return nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read params: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parse params yaml: %w", err)
	}
	flat := make(map[string]interface{})
	flatten("", tree, flat)

	s.mu.Lock()
	s.values = flat
	s.mu.Unlock()
	s.version.Add(1)
	s.stale.Store(true)
	return nil
}

// Set 修改单个参数并标记为已变更
func (s *Store) Set(key string, v interface{}) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	s.version.Add(1)
	s.stale.Store(true)
}

// Stale 配置是否在上次确认后发生了变更
func (s *Store) Stale() bool { return s.stale.Load() }

// MarkStale 手动标记
func (s *Store) MarkStale() { s.stale.Store(true) }

// ClearStale 重新初始化完成后清除标志
func (s *Store) ClearStale() { s.stale.Store(false) }

// Version 每次变更递增
func (s *Store) Version() int64 { return s.version.Load() }

// Path 参数文件路径
func (s *Store) Path() string { return s.path }

// Keys 已排序的全部 key
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) String(key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (s *Store) Float(key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

func (s *Store) Int(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
	}
	return def
}

func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Duration 支持 "5s" 形式的字符串，数字按秒处理
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case time.Duration:
		return t
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	case int:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	}
	return def
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
