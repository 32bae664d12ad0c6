package bus

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/schedule"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) handler(tag string) Handler {
	return func(m Message) {
		r.mu.Lock()
		r.seen = append(r.seen, tag+":"+string(m.Payload))
		r.mu.Unlock()
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestSyncPublishFansOutInline(t *testing.T) {
	b := New(Config{}, schedule.New(schedule.Synchronous, nil), nil, nil)
	rec := &recorder{}
	b.Subscribe(rec.handler("a"))
	b.Subscribe(rec.handler("b"))

	require.NoError(t, b.Publish(Message{Topic: "signal", Payload: []byte("1")}))
	// 同步模式返回前已投递
	assert.Equal(t, []string{"a:1", "b:1"}, rec.snapshot())
}

func TestAsyncDeliversInOrderAndDrainsOnClose(t *testing.T) {
	sched := schedule.New(schedule.Asynchronous, nil)
	defer sched.Shutdown()
	b := New(Config{Capacity: 64}, sched, nil, nil)
	rec := &recorder{}
	b.Subscribe(rec.handler("a"))
	require.NoError(t, b.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(Message{Payload: []byte{byte('0' + i)}}))
	}
	b.Close()

	got := rec.snapshot()
	require.Len(t, got, 10)
	for i, s := range got {
		assert.Equal(t, "a:"+string(rune('0'+i)), s)
	}
	assert.ErrorIs(t, b.Publish(Message{}), ErrClosed)
}

func TestAsyncDropsOldestWhenFull(t *testing.T) {
	mon := monitor.New(monitor.DefaultConfig())
	sched := schedule.New(schedule.Asynchronous, nil)
	defer sched.Shutdown()
	b := New(Config{Capacity: 2}, sched, nil, mon)
	rec := &recorder{}
	b.Subscribe(rec.handler("a"))

	// 分发器尚未启动，消息只在队列里堆积
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, b.Publish(Message{Payload: []byte(p)}))
	}
	st := b.Stats()
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, 2, st.Queued)

	b.Close()
	assert.Equal(t, []string{"a:2", "a:3"}, rec.snapshot())
	expected := `
# HELP sfc_trading_bus_dropped_total 总线队列满丢弃的消息数
# TYPE sfc_trading_bus_dropped_total counter
sfc_trading_bus_dropped_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(mon.Registry(), strings.NewReader(expected), "sfc_trading_bus_dropped_total"))
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New(Config{}, nil, nil, nil)
	rec := &recorder{}
	b.Subscribe(func(Message) { panic("bad subscriber") })
	b.Subscribe(rec.handler("b"))

	assert.NotPanics(t, func() { _ = b.Publish(Message{Payload: []byte("x")}) })
	assert.Equal(t, []string{"b:x"}, rec.snapshot())
}

func TestAsyncDispatchIsEventuallyDelivered(t *testing.T) {
	sched := schedule.New(schedule.Asynchronous, nil)
	defer sched.Shutdown()
	b := New(Config{}, sched, nil, nil)
	got := make(chan Message, 1)
	b.Subscribe(func(m Message) { got <- m })
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	require.NoError(t, b.Publish(Message{Topic: "t"}))
	select {
	case m := <-got:
		assert.Equal(t, "t", m.Topic)
		assert.False(t, m.PublishedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}
