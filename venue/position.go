package venue

// tracker 维护净仓位与加权平均成本，并累计已实现盈亏
type tracker struct {
	net      float64
	cost     float64
	realized float64
}

// apply 根据带方向的成交数量调整仓位，返回本次实现的盈亏（未乘合约乘数）
func (t *tracker) apply(deltaQty, price float64) float64 {
	if deltaQty == 0 {
		return 0
	}
	var realized float64
	// 反向成交先平掉已有仓位
	if t.net != 0 && (t.net > 0) != (deltaQty > 0) {
		closing := minAbs(deltaQty, t.net)
		if t.net > 0 {
			realized = closing * (price - t.cost)
		} else {
			realized = closing * (t.cost - price)
		}
		t.realized += realized
		if abs(deltaQty) <= abs(t.net) {
			t.net += deltaQty
			if t.net == 0 {
				t.cost = 0
			}
			return realized
		}
		// 反手
		deltaQty += sign(t.net) * closing
		t.net = 0
		t.cost = 0
	}
	totalValue := t.cost*t.net + price*deltaQty
	t.net += deltaQty
	if t.net != 0 {
		t.cost = totalValue / t.net
	} else {
		t.cost = 0
	}
	return realized
}

// valuation 基于当前价计算未实现盈亏
func (t *tracker) valuation(mark float64) float64 {
	return (mark - t.cost) * t.net
}

func minAbs(a, b float64) float64 {
	if abs(a) < abs(b) {
		return abs(a)
	}
	return abs(b)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
