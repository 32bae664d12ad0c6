// Package filter 挂单过滤（风控审计之后、执行之前），保持顺序，只删除不修改。
package filter

import (
	"time"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/order"
)

// Context 过滤时的市场环境
type Context struct {
	Now   time.Time
	Price float64
}

// PendingFilter 过滤器接口
type PendingFilter interface {
	Name() string
	Apply(ctx Context, orders []order.PendingOrder) []order.PendingOrder
}

// Chain 顺序执行多个过滤器，结果为空时提前结束
type Chain struct {
	filters []PendingFilter
	logger  *logger.Logger
}

func NewChain(log *logger.Logger, filters ...PendingFilter) *Chain {
	return &Chain{filters: filters, logger: logger.OrNop(log).Named("filter")}
}

// Add 追加过滤器
func (c *Chain) Add(f PendingFilter) { c.filters = append(c.filters, f) }

// Len 过滤器数量
func (c *Chain) Len() int { return len(c.filters) }

func (c *Chain) Apply(ctx Context, orders []order.PendingOrder) []order.PendingOrder {
	out := orders
	for _, f := range c.filters {
		if len(out) == 0 {
			return nil
		}
		before := len(out)
		out = f.Apply(ctx, out)
		if dropped := before - len(out); dropped > 0 {
			c.logger.LogStage("filter", f.Name(), map[string]interface{}{"dropped": dropped})
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keep 按谓词保留，保持原顺序
func keep(orders []order.PendingOrder, pred func(order.PendingOrder) bool) []order.PendingOrder {
	out := make([]order.PendingOrder, 0, len(orders))
	for _, o := range orders {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}
