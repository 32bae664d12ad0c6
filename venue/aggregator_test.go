package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarAggregator(t *testing.T) {
	agg := NewBarAggregator(time.Minute)
	ts := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	_, ok := agg.OnTick(100, ts)
	assert.False(t, ok, "first tick opens a bar")
	agg.OnTick(102, ts.Add(10*time.Second))
	agg.OnTick(99, ts.Add(20*time.Second))
	agg.OnTick(100.5, ts.Add(59*time.Second))

	closed, ok := agg.OnTick(101, ts.Add(70*time.Second))
	require.True(t, ok)
	assert.Equal(t, Bar{Open: 100, High: 102, Low: 99, Close: 100.5, Time: ts.Add(time.Minute)}, closed)

	open, ok := agg.Flush()
	require.True(t, ok)
	assert.Equal(t, 101.0, open.Open)
	_, ok = agg.Flush()
	assert.False(t, ok)
}

func TestBarAggregatorIgnoresBadPrice(t *testing.T) {
	agg := NewBarAggregator(0)
	_, ok := agg.OnTick(0, time.Now())
	assert.False(t, ok)
	_, ok = agg.Flush()
	assert.False(t, ok)
}
