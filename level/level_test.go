package level

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBucketsByLevelPrice(t *testing.T) {
	s := NewStore()
	at := time.Now()
	s.Add(New(100, "round", at))
	s.Add(New(100, "swing", at))
	s.Add(New(105, "round", at))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Buckets())
	assert.Len(t, s.Bucket(100), 2)
}

func TestStoreRemoveAbsentIsNoop(t *testing.T) {
	s := NewStore()
	at := time.Now()
	keep := New(100, "round", at)
	s.Add(keep)
	s.Add(New(105, "round", at))

	assert.False(t, s.Remove(New(100, "swing", at)))
	assert.False(t, s.Remove(New(200, "round", at)))
	assert.False(t, s.Remove(New(100, "round", at.Add(time.Second))))
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.Bucket(100), 1)
	assert.Len(t, s.Bucket(105), 1)
}

func TestStoreRemoveStructuralAndDropsEmptyBucket(t *testing.T) {
	s := NewStore()
	at := time.Now()
	l := New(100, "round", at)
	s.Add(l)

	// 不同 ID 但结构相等
	twin := Level{ID: "other", Price: 100, Category: "round", CreatedAt: at}
	assert.True(t, s.Remove(twin))
	assert.Equal(t, 0, s.Buckets())
}

func TestStoreRemoveExpired(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Add(New(100, "round", now.Add(-2*time.Hour)))
	s.Add(New(100, "round", now.Add(-time.Minute)))
	s.Add(New(90, "round", now.Add(-3*time.Hour)))

	assert.Equal(t, 2, s.RemoveExpired(now, time.Hour))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Buckets())
	assert.Equal(t, 0, s.RemoveExpired(now, 0))
}

func TestInRange(t *testing.T) {
	s := NewStore()
	at := time.Now()
	for _, p := range []float64{95, 99, 100, 101, 106} {
		s.Add(New(p, "round", at))
	}
	got := s.InRange(100, 1)
	require.Len(t, got, 3)
	assert.Equal(t, 99.0, got[0].Price)
	assert.Equal(t, 101.0, got[2].Price)
	assert.True(t, IsWithinRange(100, 101, 1))
	assert.False(t, IsWithinRange(100, 101.5, 1))
}

func TestDecodeLevel(t *testing.T) {
	l, err := Decode([]byte(`{"price": 4500.25, "levelType": "swing", "clearOnTouch": true, "targetPrice": 4510}`))
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
	require.NotNil(t, l.TargetPrice)
	assert.Equal(t, 4510.0, *l.TargetPrice)
	assert.Nil(t, l.StopPrice)

	_, err = Decode([]byte(`{"levelType": "swing"}`))
	assert.Error(t, err)
}

func TestRoundNumberGeneratorEmitsOnce(t *testing.T) {
	g := NewRoundNumberGenerator(RoundNumberConfig{Step: 5, Count: 1})
	first := g.GenerateLevels(102)
	require.Len(t, first, 2)
	assert.Equal(t, 100.0, first[0].Price)
	assert.Equal(t, 105.0, first[1].Price)
	assert.Empty(t, g.GenerateLevels(103))
}

func TestProximityProcessorTriggersOncePerLevel(t *testing.T) {
	s := NewStore()
	stop := 98.0
	support := New(100, "round", time.Now())
	support.StopPrice = &stop
	resistance := New(110, "round", time.Now())
	resistance.ClearOnTouch = true
	s.Add(support)
	s.Add(resistance)

	p := NewProximityProcessor(ProximityConfig{Range: 0.5, Quantity: 2})

	sigs, clear := p.ProcessLevels(s, 100.25)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Buy)
	assert.Equal(t, 100.0, sigs[0].Price)
	assert.Equal(t, 98.0, sigs[0].StopLoss)
	assert.Equal(t, "SIGNAL_1", sigs[0].Key)
	assert.Empty(t, clear)

	sigs, _ = p.ProcessLevels(s, 100.1)
	assert.Empty(t, sigs, "same level must not fire twice")

	sigs, clear = p.ProcessLevels(s, 109.8)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Sell)
	require.Len(t, clear, 1)
	assert.True(t, clear[0].Equal(resistance))
}
