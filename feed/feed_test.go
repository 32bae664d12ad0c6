package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-forge-core/bus"
	"signal-forge-core/signal"
)

type memPublisher struct {
	mu   sync.Mutex
	msgs []bus.Message
	err  error
}

func (p *memPublisher) Publish(msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func TestHandleMessageSingleAndBatch(t *testing.T) {
	pub := &memPublisher{}
	c, err := NewClient(Config{}, pub, nil, nil)
	require.NoError(t, err)

	n := c.HandleMessage([]byte(`{"signalKey":"SIGNAL_1","buySignal":true,"price":101.25}`))
	assert.Equal(t, 1, n)

	n = c.HandleMessage([]byte(`[
		{"id":"s-2","signalKey":"SIGNAL_2","price":101.5,"attachedSignalIds":["s-1"]},
		{"signalKey":"","price":1},
		{"signalKey":"SIGNAL_1","price":-3}
	]`))
	assert.Equal(t, 1, n)

	accepted, malformed := c.Counts()
	assert.Equal(t, uint64(2), accepted)
	assert.Equal(t, uint64(2), malformed)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, signal.TopicSignal, pub.msgs[0].Topic)
	first, err := signal.Decode(pub.msgs[0].Payload)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID, "id assigned on ingest")
	second, err := signal.Decode(pub.msgs[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, "s-2", second.ID)
	assert.Equal(t, []string{"s-1"}, second.AttachedIDs)
}

func TestHandleMessageGarbage(t *testing.T) {
	c, err := NewClient(Config{}, &memPublisher{}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, c.HandleMessage([]byte("not json")))
	assert.Zero(t, c.HandleMessage([]byte("[1, 2")))
	_, malformed := c.Counts()
	assert.Equal(t, uint64(2), malformed)
}

func TestHandleMessagePublishFailure(t *testing.T) {
	c, err := NewClient(Config{}, &memPublisher{err: bus.ErrClosed}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, c.HandleMessage([]byte(`{"signalKey":"SIGNAL_1","price":1}`)))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewClient(Config{Enabled: true}, &memPublisher{}, nil, nil)
	assert.Error(t, err)
}

func TestClientReadsFromServer(t *testing.T) {
	var (
		authMu  sync.Mutex
		gotAuth string
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authMu.Lock()
		gotAuth = r.Header.Get("Authorization")
		authMu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"signalKey":"SIGNAL_1","buySignal":true,"price":10}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"signalKey":"SIGNAL_2","price":10}`))
		// 保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	pub := &memPublisher{}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := NewClient(Config{Enabled: true, URL: url, Token: "tkn", RetryBackoff: 10 * time.Millisecond}, pub, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Health(), ErrDisconnected)

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
	assert.NoError(t, c.Health())
	authMu.Lock()
	assert.Equal(t, "Bearer tkn", gotAuth)
	authMu.Unlock()

	require.NoError(t, c.Stop())
	assert.False(t, c.Connected())
}

func TestClientPingsQuietServer(t *testing.T) {
	var conns, pings atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		conn.SetPingHandler(func(data string) error {
			pings.Add(1)
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		// 从不发送数据，只处理控制帧
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := NewClient(Config{Enabled: true, URL: url, ReadTimeout: 200 * time.Millisecond, RetryBackoff: 10 * time.Millisecond}, &memPublisher{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Eventually(t, func() bool { return pings.Load() >= 4 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, c.Connected())
	assert.NoError(t, c.Health())
	assert.Equal(t, int32(1), conns.Load(), "quiet feed must not reconnect")
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	c, err := NewClient(Config{Enabled: true, URL: "ws://127.0.0.1:1/none", MaxRetries: 1, RetryBackoff: time.Millisecond}, &memPublisher{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool {
		err := c.Health()
		return err != nil && err != ErrDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Stop())
}

func TestDisabledClientIsNoop(t *testing.T) {
	c, err := NewClient(Config{}, &memPublisher{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Health())
	assert.NoError(t, c.Stop())
}
