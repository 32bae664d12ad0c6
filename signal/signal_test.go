package signal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWireSignal(t *testing.T) {
	raw := []byte(`{"signalKey":"SIGNAL_2","buySignal":true,"price":101.5,"stopLoss":99,"attachedSignalIds":["p1"],"tradeSystemName":"demo"}`)
	s, err := Decode(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "SIGNAL_2", s.Key)
	assert.True(t, s.Buy)
	assert.Equal(t, []string{"p1"}, s.AttachedIDs)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no key":     `{"price": 1}`,
		"no price":   `{"signalKey": "S1"}`,
		"both sides": `{"signalKey": "S1", "price": 1, "buySignal": true, "sellSignal": true}`,
		"bad json":   `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
