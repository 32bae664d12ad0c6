package venue

import (
	"sync"
	"time"
)

// BarAggregator 把逐笔价格聚合成固定周期的 bar。周期按 Interval 对齐
type BarAggregator struct {
	Interval time.Duration
	mu       sync.Mutex
	current  *Bar
	start    time.Time
}

func NewBarAggregator(interval time.Duration) *BarAggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BarAggregator{Interval: interval}
}

// OnTick 更新当前 bar；跨入新周期时返回已闭合的上一根
func (a *BarAggregator) OnTick(price float64, ts time.Time) (Bar, bool) {
	if price <= 0 {
		return Bar{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := ts.Truncate(a.Interval)
	if a.current != nil && bucket.Equal(a.start) {
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.Close = price
		return Bar{}, false
	}

	var (
		closed Bar
		ok     bool
	)
	if a.current != nil {
		closed, ok = *a.current, true
	}
	a.start = bucket
	a.current = &Bar{Open: price, High: price, Low: price, Close: price, Time: bucket.Add(a.Interval)}
	return closed, ok
}

// Flush 取出尚未闭合的 bar
func (a *BarAggregator) Flush() (Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Bar{}, false
	}
	b := *a.current
	a.current = nil
	return b, true
}
