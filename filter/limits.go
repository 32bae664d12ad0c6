package filter

import (
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/order"
)

// MaxOrdersFilter 每轮最多放行前 Max 个订单
type MaxOrdersFilter struct {
	Max int
}

func (f MaxOrdersFilter) Name() string { return "max_orders" }

func (f MaxOrdersFilter) Apply(_ Context, orders []order.PendingOrder) []order.PendingOrder {
	if f.Max <= 0 || len(orders) <= f.Max {
		return orders
	}
	return orders[:f.Max]
}

// ConstraintFilter 丢弃不满足品种最小变动价位/数量约束的订单
type ConstraintFilter struct {
	constraints map[string]order.SymbolConstraints
	logger      *logger.Logger
}

func NewConstraintFilter(constraints map[string]order.SymbolConstraints, log *logger.Logger) *ConstraintFilter {
	return &ConstraintFilter{constraints: constraints, logger: logger.OrNop(log)}
}

func (f *ConstraintFilter) Name() string { return "constraints" }

func (f *ConstraintFilter) Apply(_ Context, orders []order.PendingOrder) []order.PendingOrder {
	return keep(orders, func(o order.PendingOrder) bool {
		c, ok := f.constraints[o.Symbol]
		if !ok {
			return true
		}
		if err := c.Validate(o); err != nil {
			f.logger.LogOrder("filtered", o.ClientID, map[string]interface{}{"reason": err.Error()})
			return false
		}
		return true
	})
}

// MinWeightFilter 丢弃权重低于阈值的订单
type MinWeightFilter struct {
	Min float64
}

func (f MinWeightFilter) Name() string { return "min_weight" }

func (f MinWeightFilter) Apply(_ Context, orders []order.PendingOrder) []order.PendingOrder {
	return keep(orders, func(o order.PendingOrder) bool { return o.Weight >= f.Min })
}
