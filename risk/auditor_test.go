package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-forge-core/order"
	"signal-forge-core/venue"
)

type fakeVenue struct {
	pos      venue.Position
	posErr   error
	price    float64
	now      time.Time
	closeErr error
	closed   []string
}

func (f *fakeVenue) Position(symbol string) (venue.Position, error) {
	p := f.pos
	p.Symbol = symbol
	return p, f.posErr
}
func (f *fakeVenue) CurrentPrice() float64 { return f.price }
func (f *fakeVenue) Now() time.Time        { return f.now }
func (f *fakeVenue) CloseOrCancel(o order.ExecutedOrder) (order.ExecutedOrder, error) {
	if f.closeErr != nil {
		return order.ExecutedOrder{}, f.closeErr
	}
	f.closed = append(f.closed, o.ID)
	o.Status = order.StatusCancelled
	return o, nil
}

func acceptAllPending() PendingFunc {
	return func(order.PendingOrder, Snapshot) (order.RiskAssessment, error) { return order.Accept("ok"), nil }
}

func acceptAllActive() ActiveFunc {
	return func(order.ExecutedOrder, Snapshot) (order.RiskAssessment, error) { return order.Accept("ok"), nil }
}

func acceptAllPosition() PositionFunc {
	return func(venue.Position, Snapshot) (order.RiskAssessment, error) { return order.Accept("ok"), nil }
}

func newTestAuditor(t *testing.T, v *fakeVenue, comps Components) *Auditor {
	t.Helper()
	comps.Venue = v
	if comps.Pending == nil {
		comps.Pending = acceptAllPending()
	}
	if comps.Active == nil {
		comps.Active = acceptAllActive()
	}
	if comps.Position == nil {
		comps.Position = acceptAllPosition()
	}
	a, err := NewAuditor(Config{Symbol: "ES"}, comps)
	require.NoError(t, err)
	return a
}

func pending(id string, side order.Side, qty float64) order.PendingOrder {
	return order.PendingOrder{ClientID: id, Symbol: "ES", Side: side, Kind: order.KindLimit, Quantity: qty, Price: 100}
}

func TestNewAuditorRequiresComponents(t *testing.T) {
	_, err := NewAuditor(Config{}, Components{})
	assert.Error(t, err)
	_, err = NewAuditor(Config{}, Components{Venue: &fakeVenue{}})
	assert.Error(t, err)
}

func TestAuditPendingPartitions(t *testing.T) {
	v := &fakeVenue{price: 100, now: time.Now()}
	a := newTestAuditor(t, v, Components{Pending: PendingFunc(func(o order.PendingOrder, _ Snapshot) (order.RiskAssessment, error) {
		if o.Quantity > 2 {
			return order.Reject("too big"), nil
		}
		return order.Accept("ok"), nil
	})})

	out := a.AuditPending([]order.PendingOrder{pending("a", order.SideBuy, 1), pending("b", order.SideBuy, 5), pending("c", order.SideSell, 2)})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ClientID)
	assert.Equal(t, "c", out[1].ClientID)
	assert.True(t, out[0].Risk.Acceptable)
	assert.Equal(t, "ok", out[0].Risk.Note)
}

func TestAuditPendingNoneAccepted(t *testing.T) {
	a := newTestAuditor(t, &fakeVenue{}, Components{Pending: PendingFunc(func(order.PendingOrder, Snapshot) (order.RiskAssessment, error) {
		return order.Reject("no"), nil
	})})
	assert.Nil(t, a.AuditPending([]order.PendingOrder{pending("a", order.SideBuy, 1)}))
	assert.Nil(t, a.AuditPending(nil))
}

func TestAuditPendingFailsClosed(t *testing.T) {
	calls := 0
	a := newTestAuditor(t, &fakeVenue{}, Components{Pending: PendingFunc(func(o order.PendingOrder, _ Snapshot) (order.RiskAssessment, error) {
		calls++
		switch o.ClientID {
		case "err":
			return order.Accept("lying"), errors.New("model down")
		case "panic":
			panic("boom")
		}
		return order.Accept("ok"), nil
	})})

	out := a.AuditPending([]order.PendingOrder{pending("err", order.SideBuy, 1), pending("panic", order.SideBuy, 1), pending("fine", order.SideBuy, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, "fine", out[0].ClientID)
	assert.Equal(t, 3, calls)
}

func TestAuditPendingSnapshotFailureRejectsAll(t *testing.T) {
	a := newTestAuditor(t, &fakeVenue{posErr: venue.ErrUnavailable}, Components{})
	assert.Nil(t, a.AuditPending([]order.PendingOrder{pending("a", order.SideBuy, 1)}))
}

func TestAuditPendingProjectsBatchPosition(t *testing.T) {
	limits := NewLimitEvaluator(Limits{NetMax: 3}, nil)
	a := newTestAuditor(t, &fakeVenue{pos: venue.Position{Quantity: 1}}, Components{Pending: ChainPending(limits)})

	out := a.AuditPending([]order.PendingOrder{pending("a", order.SideBuy, 1), pending("b", order.SideBuy, 1), pending("c", order.SideBuy, 1)})
	require.Len(t, out, 2, "third order would push net to 4")
	assert.Equal(t, 2.0, limits.DailyVolume("ES"))
}

func TestAuditActiveClosesUnacceptable(t *testing.T) {
	v := &fakeVenue{price: 100}
	a := newTestAuditor(t, v, Components{Active: ActiveFunc(func(o order.ExecutedOrder, _ Snapshot) (order.RiskAssessment, error) {
		if o.ID == "bad" {
			return order.Reject("stop hit"), nil
		}
		return order.Accept("ok"), nil
	})})

	good := order.ExecutedOrder{ID: "good", Symbol: "ES", Status: order.StatusFilled}
	bad := order.ExecutedOrder{ID: "bad", Symbol: "ES", Status: order.StatusNone}
	out := a.AuditActive([]order.ExecutedOrder{good, bad})

	require.Len(t, out, 1)
	assert.Equal(t, "bad", out[0].ID)
	assert.Equal(t, order.StatusCancelled, out[0].Status)
	assert.False(t, out[0].Risk.Acceptable)
	assert.Equal(t, []string{"bad"}, v.closed)
}

func TestAuditActiveVenueFailureReturnsOrderUnchanged(t *testing.T) {
	v := &fakeVenue{closeErr: errors.New("link down")}
	a := newTestAuditor(t, v, Components{Active: ActiveFunc(func(order.ExecutedOrder, Snapshot) (order.RiskAssessment, error) {
		panic("evaluator bug")
	})})

	out := a.AuditActive([]order.ExecutedOrder{{ID: "x", Symbol: "ES", Status: order.StatusPartial}})
	require.Len(t, out, 1)
	assert.Equal(t, order.StatusPartial, out[0].Status)
	assert.False(t, out[0].Risk.Acceptable)
	assert.Contains(t, out[0].Risk.Note, "panic")
}

func TestAuditActiveSnapshotFailureClosesOrder(t *testing.T) {
	v := &fakeVenue{posErr: venue.ErrUnavailable}
	evaluated := false
	a := newTestAuditor(t, v, Components{Active: ActiveFunc(func(order.ExecutedOrder, Snapshot) (order.RiskAssessment, error) {
		evaluated = true
		return order.Accept("ok"), nil
	})})

	out := a.AuditActive([]order.ExecutedOrder{{ID: "f", Symbol: "ES", Status: order.StatusFilled, FilledQty: 1}})
	require.Len(t, out, 1)
	assert.False(t, evaluated)
	assert.Equal(t, "f", out[0].ID)
	assert.False(t, out[0].Risk.Acceptable)
	assert.Contains(t, out[0].Risk.Note, "snapshot")
	assert.Equal(t, []string{"f"}, v.closed)

	// 平仓也失败时原样返回
	v.closeErr = errors.New("link down")
	v.closed = nil
	out = a.AuditActive([]order.ExecutedOrder{{ID: "g", Symbol: "ES", Status: order.StatusPartial}})
	require.Len(t, out, 1)
	assert.Equal(t, order.StatusPartial, out[0].Status)
	assert.False(t, out[0].Risk.Acceptable)
	assert.Empty(t, v.closed)
}

func TestAuditPosition(t *testing.T) {
	v := &fakeVenue{pos: venue.Position{Quantity: 5}}
	a := newTestAuditor(t, v, Components{Position: ChainPosition(NewExposureEvaluator(ExposureConfig{NetMax: 3}))})

	assert.False(t, a.AuditCurrentPosition())
	assert.True(t, a.AuditPosition(venue.Position{Quantity: 2}))

	v.posErr = venue.ErrUnavailable
	assert.False(t, a.AuditCurrentPosition())
}

func TestAuditPositionFailsClosed(t *testing.T) {
	v := &fakeVenue{}
	withErr := newTestAuditor(t, v, Components{Position: PositionFunc(func(venue.Position, Snapshot) (order.RiskAssessment, error) {
		return order.Accept("lying"), errors.New("model down")
	})})
	assert.False(t, withErr.AuditPosition(venue.Position{Symbol: "ES"}))
	assert.False(t, withErr.AuditCurrentPosition())

	withPanic := newTestAuditor(t, v, Components{Position: PositionFunc(func(venue.Position, Snapshot) (order.RiskAssessment, error) {
		panic("boom")
	})})
	assert.False(t, withPanic.AuditPosition(venue.Position{Symbol: "ES"}))
	assert.False(t, withPanic.AuditCurrentPosition())
}
