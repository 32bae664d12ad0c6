// Package level 价位的存储、生成与处理流水线。
package level

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Level 以价格锚定的标记，价格接近时触发信号
type Level struct {
	ID           string    `json:"id"`
	Price        float64   `json:"price"`
	Category     string    `json:"levelType"`
	CreatedAt    time.Time `json:"timestamp"`
	TargetPrice  *float64  `json:"targetPrice,omitempty"`
	StopPrice    *float64  `json:"stopLossPrice,omitempty"`
	ClearOnTouch bool      `json:"clearOnTouch"`
	System       string    `json:"tradeSystemName,omitempty"`
}

// New 创建价位并分配 ID
func New(price float64, category string, at time.Time) Level {
	return Level{ID: uuid.NewString(), Price: price, Category: category, CreatedAt: at}
}

// Equal 清除时使用的结构相等：价格、类别、时间戳
func (l Level) Equal(o Level) bool {
	return l.Price == o.Price && l.Category == o.Category && l.CreatedAt.Equal(o.CreatedAt)
}

// Decode 解析线上 JSON，价格必填
func Decode(data []byte) (Level, error) {
	var l Level
	if err := json.Unmarshal(data, &l); err != nil {
		return Level{}, fmt.Errorf("malformed level: %w", err)
	}
	if l.Price <= 0 || math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
		return Level{}, fmt.Errorf("malformed level: price must be a positive number")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return l, nil
}

// View 价位存储的只读视图
type View interface {
	All() []Level
	Bucket(price float64) []Level
	InRange(price, rng float64) []Level
	Len() int
}

// Store 按价格分桶的价位集合，同价位的价位组成列表。
// 本身不加锁，由 Manager 的锁保护。
type Store struct {
	buckets map[float64][]Level
	count   int
}

func NewStore() *Store {
	return &Store{buckets: make(map[float64][]Level)}
}

// Add 放入价位自身价格的桶
func (s *Store) Add(l Level) {
	s.buckets[l.Price] = append(s.buckets[l.Price], l)
	s.count++
}

// Remove 从所属桶中移除结构相等的价位，桶空时删除桶；不存在时无操作
func (s *Store) Remove(l Level) bool {
	bucket, ok := s.buckets[l.Price]
	if !ok {
		return false
	}
	for i, cur := range bucket {
		if !cur.Equal(l) {
			continue
		}
		bucket = append(bucket[:i:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(s.buckets, l.Price)
		} else {
			s.buckets[l.Price] = bucket
		}
		s.count--
		return true
	}
	return false
}

// RemoveExpired 删除 now-CreatedAt 超过 maxAge 的价位，返回删除数量
func (s *Store) RemoveExpired(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	removed := 0
	for price, bucket := range s.buckets {
		kept := bucket[:0:0]
		for _, l := range bucket {
			if now.Sub(l.CreatedAt) > maxAge {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(s.buckets, price)
		} else {
			s.buckets[price] = kept
		}
	}
	s.count -= removed
	return removed
}

// All 按价格升序返回全部价位副本
func (s *Store) All() []Level {
	out := make([]Level, 0, s.count)
	for _, price := range s.prices() {
		out = append(out, s.buckets[price]...)
	}
	return out
}

func (s *Store) Bucket(price float64) []Level {
	return append([]Level(nil), s.buckets[price]...)
}

// InRange 返回桶价格落在 [price-rng, price+rng] 内的价位
func (s *Store) InRange(price, rng float64) []Level {
	var out []Level
	for _, p := range s.prices() {
		if IsWithinRange(p, price, rng) {
			out = append(out, s.buckets[p]...)
		}
	}
	return out
}

func (s *Store) Len() int { return s.count }

// Buckets 桶数量
func (s *Store) Buckets() int { return len(s.buckets) }

func (s *Store) prices() []float64 {
	prices := make([]float64, 0, len(s.buckets))
	for p := range s.buckets {
		prices = append(prices, p)
	}
	sort.Float64s(prices)
	return prices
}

// IsWithinRange |a-b| <= rng
func IsWithinRange(a, b, rng float64) bool {
	return math.Abs(a-b) <= rng
}
