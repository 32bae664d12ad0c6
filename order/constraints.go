package order

import (
	"fmt"
	"math"
)

// SymbolConstraints 描述交易对的步长与名义限制。
type SymbolConstraints struct {
	TickSize    float64 `yaml:"tickSize"`
	StepSize    float64 `yaml:"stepSize"`
	MinQty      float64 `yaml:"minQty"`
	MaxQty      float64 `yaml:"maxQty"`
	MinNotional float64 `yaml:"minNotional"`
}

// Validate 检查待发订单价格/数量是否符合精度与最小名义；市价单不校验价格精度。
func (c SymbolConstraints) Validate(o PendingOrder) error {
	qty := math.Abs(o.Quantity)
	if o.Kind != KindMarket && c.TickSize > 0 && !isMultiple(o.Price, c.TickSize) {
		return fmt.Errorf("price %.8f not aligned to tickSize %.8f", o.Price, c.TickSize)
	}
	if c.StepSize > 0 && !isMultiple(qty, c.StepSize) {
		return fmt.Errorf("qty %.8f not aligned to stepSize %.8f", qty, c.StepSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("qty %.8f < minQty %.8f", qty, c.MinQty)
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		return fmt.Errorf("qty %.8f > maxQty %.8f", qty, c.MaxQty)
	}
	if c.MinNotional > 0 && o.Notional() < c.MinNotional {
		return fmt.Errorf("notional %.8f < minNotional %.8f", o.Notional(), c.MinNotional)
	}
	return nil
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) <= 1e-8
}
