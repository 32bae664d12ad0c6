package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-forge-core/order"
	"signal-forge-core/params"
	"signal-forge-core/venue"
)

func TestLimitEvaluator(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	clock := ClockFunc(func() time.Time { return now })
	l := NewLimitEvaluator(Limits{SingleMax: 100, DailyMax: 200, NetMax: 150, MaxNotional: 50000}, clock)
	snap := Snapshot{Price: 100}

	buy := func(qty float64) order.PendingOrder {
		return order.PendingOrder{Symbol: "ES", Side: order.SideBuy, Quantity: qty, Price: 100}
	}

	a, err := l.EvaluatePending(buy(50), snap)
	require.NoError(t, err)
	assert.True(t, a.Acceptable)

	a, _ = l.EvaluatePending(buy(120), snap)
	assert.False(t, a.Acceptable)
	assert.Contains(t, a.Note, ErrSingleExceed.Error())

	l.Accepted(buy(100), now)
	l.Accepted(buy(90), now)
	a, _ = l.EvaluatePending(buy(20), snap)
	assert.False(t, a.Acceptable)
	assert.Contains(t, a.Note, ErrDailyExceed.Error())

	// 隔日重置
	now = now.Add(25 * time.Hour)
	a, _ = l.EvaluatePending(buy(20), Snapshot{Price: 100, Position: venue.Position{Quantity: 140}})
	assert.False(t, a.Acceptable)
	assert.Contains(t, a.Note, ErrNetExceed.Error())
	assert.Zero(t, l.DailyVolume("ES"))

	a, _ = l.EvaluatePending(order.PendingOrder{Symbol: "ES", Side: order.SideSell, Quantity: 0}, snap)
	assert.False(t, a.Acceptable)
}

func TestLimitEvaluatorNotionalUsesMarkForMarketOrders(t *testing.T) {
	l := NewLimitEvaluator(Limits{MaxNotional: 1000}, nil)
	a, err := l.EvaluatePending(order.PendingOrder{Symbol: "ES", Side: order.SideBuy, Kind: order.KindMarket, Quantity: 2}, Snapshot{Price: 600})
	require.NoError(t, err)
	assert.False(t, a.Acceptable)
}

func TestLimitEvaluatorReconfigure(t *testing.T) {
	l := NewLimitEvaluator(Limits{SingleMax: 1, NetMax: 5}, nil)
	require.NoError(t, l.Reconfigure(params.FromMap(map[string]interface{}{"risk.singleMax": 10})))
	assert.Equal(t, Limits{SingleMax: 10, NetMax: 5}, l.Limits())

	assert.Error(t, l.Reconfigure(params.FromMap(map[string]interface{}{"risk.netMax": -1})))
	assert.Equal(t, 5.0, l.Limits().NetMax)
}

func TestStopEvaluator(t *testing.T) {
	entry := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	s := NewStopEvaluator(StopConfig{MaxOrderLoss: 50, MaxHolding: time.Hour, MaxWorkingAge: 10 * time.Minute})

	long := order.ExecutedOrder{ID: "1", Side: order.SideBuy, FillPrice: 100, FilledQty: 10, EntryTime: entry, Status: order.StatusFilled}

	a, err := s.EvaluateActive(long, Snapshot{Price: 97, Time: entry.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, a.Acceptable)
	assert.Equal(t, 30.0, a.MaxDrawdown)

	a, _ = s.EvaluateActive(long, Snapshot{Price: 94, Time: entry.Add(time.Minute)})
	assert.False(t, a.Acceptable)

	a, _ = s.EvaluateActive(long, Snapshot{Price: 101, Time: entry.Add(2 * time.Hour)})
	assert.False(t, a.Acceptable)

	working := order.ExecutedOrder{ID: "2", Side: order.SideSell, RequestedQty: 1, EntryTime: entry, Status: order.StatusNone}
	a, _ = s.EvaluateActive(working, Snapshot{Time: entry.Add(11 * time.Minute)})
	assert.False(t, a.Acceptable)

	_, err = s.EvaluateActive(long, Snapshot{Time: entry})
	assert.Error(t, err, "no mark price")

	closed := long
	closed.ExitTime = entry.Add(time.Minute)
	a, _ = s.EvaluateActive(closed, Snapshot{Price: 1, Time: entry.Add(3 * time.Hour)})
	assert.True(t, a.Acceptable)
}

func TestExposureEvaluator(t *testing.T) {
	e := NewExposureEvaluator(ExposureConfig{NetMax: 3, DailyLossLimit: 500, MaxOpenLoss: 200})

	a, _ := e.EvaluatePosition(venue.Position{Quantity: -2, DailyPnL: -100, OpenPnL: -50, MaxOpenLoss: -80}, Snapshot{})
	assert.True(t, a.Acceptable)
	assert.Equal(t, 80.0, a.MaxDrawdown)

	a, _ = e.EvaluatePosition(venue.Position{Quantity: -4}, Snapshot{})
	assert.False(t, a.Acceptable)
	a, _ = e.EvaluatePosition(venue.Position{DailyPnL: -501}, Snapshot{})
	assert.False(t, a.Acceptable)
	a, _ = e.EvaluatePosition(venue.Position{OpenPnL: -201}, Snapshot{})
	assert.False(t, a.Acceptable)

	require.NoError(t, e.Reconfigure(params.FromMap(map[string]interface{}{"risk.netMax": 10})))
	a, _ = e.EvaluatePosition(venue.Position{Quantity: -4}, Snapshot{})
	assert.True(t, a.Acceptable)
}

func TestChainsStopAtFirstRejection(t *testing.T) {
	second := false
	c := ChainPending(
		PendingFunc(func(order.PendingOrder, Snapshot) (order.RiskAssessment, error) { return order.Reject("first"), nil }),
		PendingFunc(func(order.PendingOrder, Snapshot) (order.RiskAssessment, error) { second = true; return order.Accept(""), nil }),
	)
	a, err := c.EvaluatePending(order.PendingOrder{}, Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, "first", a.Note)
	assert.False(t, second)

	a, _ = ChainActive().EvaluateActive(order.ExecutedOrder{}, Snapshot{})
	assert.True(t, a.Acceptable)
	a, _ = ChainPosition(nil).EvaluatePosition(venue.Position{}, Snapshot{})
	assert.True(t, a.Acceptable)
}
