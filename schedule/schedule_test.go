package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": Synchronous, "sync": Synchronous, "ASYNC": Asynchronous, "asynchronous": Asynchronous}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("threads")
	assert.Error(t, err)
}

func TestModeYAML(t *testing.T) {
	var cfg struct {
		Mode Mode `yaml:"mode"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("mode: async\n"), &cfg))
	assert.Equal(t, Asynchronous, cfg.Mode)
	assert.Equal(t, "async", cfg.Mode.String())
}

func TestSynchronousGoDeclines(t *testing.T) {
	s := New(Synchronous, nil)
	var ran atomic.Bool
	assert.False(t, s.Go(context.Background(), "noop", func(context.Context) { ran.Store(true) }))
	s.Shutdown()
	assert.False(t, ran.Load())
}

func TestAsynchronousShutdownJoins(t *testing.T) {
	s := New(Asynchronous, nil)
	var exited atomic.Bool
	started := make(chan struct{})
	ok := s.Go(context.Background(), "loop", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		exited.Store(true)
	})
	require.True(t, ok)
	<-started
	s.Shutdown()
	assert.True(t, exited.Load())
	assert.False(t, s.Go(context.Background(), "late", func(context.Context) {}))
}

func TestTaskPanicIsContained(t *testing.T) {
	s := New(Asynchronous, nil)
	s.Go(context.Background(), "boom", func(context.Context) { panic("boom") })
	assert.NotPanics(t, s.Shutdown)
}
