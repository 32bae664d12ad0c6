package filter

import (
	"time"

	"signal-forge-core/order"
	"signal-forge-core/session"
)

// TimeOfDayFilter 只在给定时段内放行新订单
type TimeOfDayFilter struct {
	window session.Window
	loc    *time.Location
}

// NewTimeOfDayFilter window 形如 "08:45-14:45"
func NewTimeOfDayFilter(window string, loc *time.Location) (*TimeOfDayFilter, error) {
	w, err := session.ParseWindow(window)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TimeOfDayFilter{window: w, loc: loc}, nil
}

func (f *TimeOfDayFilter) Name() string { return "time_of_day" }

func (f *TimeOfDayFilter) Apply(ctx Context, orders []order.PendingOrder) []order.PendingOrder {
	local := ctx.Now.In(f.loc)
	if f.window.Contains(local.Hour()*60 + local.Minute()) {
		return orders
	}
	return nil
}
