package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"signal-forge-core/infrastructure/logger"
)

func TestSendFansOut(t *testing.T) {
	a := NewMemoryChannel("a")
	b := NewMemoryChannel("b")
	mgr := NewManager(time.Minute, a, b)

	require.NoError(t, mgr.Warning("feed down", map[string]interface{}{"retries": 3}))
	assert.Len(t, a.Alerts(), 1)
	assert.Len(t, b.Alerts(), 1)
	assert.Equal(t, LevelWarning, a.Alerts()[0].Level)
	assert.False(t, a.Alerts()[0].Timestamp.IsZero())
	assert.Equal(t, []string{"a", "b"}, mgr.Channels())
}

func TestThrottleByLevelAndMessage(t *testing.T) {
	ch := NewMemoryChannel("mem")
	mgr := NewManager(time.Minute, ch)
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	mgr.throttle.now = func() time.Time { return now }

	require.NoError(t, mgr.Critical("unhealthy", nil))
	require.NoError(t, mgr.Critical("unhealthy", nil))
	require.NoError(t, mgr.Warning("unhealthy", nil))
	assert.Len(t, ch.Alerts(), 2)

	now = now.Add(time.Minute)
	require.NoError(t, mgr.Critical("unhealthy", nil))
	assert.Len(t, ch.Alerts(), 3)

	mgr.ResetThrottle()
	require.NoError(t, mgr.Critical("unhealthy", nil))
	assert.Len(t, ch.Alerts(), 4)
}

func TestSendFailsOnlyWhenEveryChannelFails(t *testing.T) {
	good := NewMemoryChannel("good")
	bad := NewMemoryChannel("bad")
	bad.SetFailing(true)
	mgr := NewManager(0, good, bad)

	assert.NoError(t, mgr.Warning("x", nil))

	good.SetFailing(true)
	err := mgr.Warning("y", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel good")
	assert.Contains(t, err.Error(), "channel bad")
}

func TestNilManagerIsSafe(t *testing.T) {
	var mgr *Manager
	assert.NoError(t, mgr.Critical("ignored", nil))
}

func TestLogChannelLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))

	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "engine unhealthy", Fields: map[string]interface{}{"component": "engine"}}))
	require.NoError(t, ch.Send(Alert{Level: LevelInfo, Message: "recovered"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "engine", entries[0].ContextMap()["component"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}
