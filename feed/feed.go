// Package feed 通过 websocket 接收外部信号，校验后发布到消息总线。
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"signal-forge-core/bus"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/signal"
)

var ErrDisconnected = errors.New("signal feed disconnected")

const writeWait = 5 * time.Second

// Config 信号源配置
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`        // 以 Bearer 头发送
	MaxRetries   int           `yaml:"maxRetries"`   // 连续拨号失败次数上限，0 表示无限
	RetryBackoff time.Duration `yaml:"retryBackoff"` // 第 n 次失败后等待 n*RetryBackoff
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"` // 0 表示 ReadTimeout/2
}

func DefaultConfig() Config {
	return Config{
		RetryBackoff: 3 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Publisher 信号发布目标，*bus.Bus 满足
type Publisher interface {
	Publish(msg bus.Message) error
}

// Client 信号源客户端：单连接，断开自动重连
type Client struct {
	cfg     Config
	pub     Publisher
	dialer  *websocket.Dialer
	logger  *logger.Logger
	monitor *monitor.Monitor

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	fatalErr  error
	connected atomic.Bool

	accepted  atomic.Uint64
	malformed atomic.Uint64
}

func NewClient(cfg Config, pub Publisher, log *logger.Logger, mon *monitor.Monitor) (*Client, error) {
	if pub == nil {
		return nil, errors.New("feed publisher is required")
	}
	if cfg.Enabled && cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
		cfg.PingInterval = cfg.ReadTimeout / 2
	}
	return &Client{
		cfg:     cfg,
		pub:     pub,
		dialer:  websocket.DefaultDialer,
		logger:  logger.OrNop(log).Named("feed"),
		monitor: mon,
	}, nil
}

// Start 启动后台连接循环（后台 goroutine）。
func (c *Client) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("feed already started")
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
	return nil
}

// Stop 断开连接并等待循环退出
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.logger.Warn("timeout waiting for feed loop")
	}
	return nil
}

// Health 未启用时总是健康
func (c *Client) Health() error {
	if !c.cfg.Enabled {
		return nil
	}
	c.mu.Lock()
	fatal := c.fatalErr
	c.mu.Unlock()
	if fatal != nil {
		return fatal
	}
	if !c.connected.Load() {
		return ErrDisconnected
	}
	return nil
}

// Connected 当前是否在线
func (c *Client) Connected() bool { return c.connected.Load() }

// Counts 已接受与格式错误的消息数
func (c *Client) Counts() (accepted, malformed uint64) {
	return c.accepted.Load(), c.malformed.Load()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	retries := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial(ctx)
		if err != nil {
			if c.cfg.MaxRetries > 0 && retries >= c.cfg.MaxRetries {
				err = fmt.Errorf("feed dial retries exhausted: %w", err)
				c.mu.Lock()
				c.fatalErr = err
				c.mu.Unlock()
				c.logger.LogError(err, map[string]interface{}{"url": c.cfg.URL})
				return
			}
			retries++
			backoff := time.Duration(retries) * c.cfg.RetryBackoff
			c.logger.Warn("feed dial failed", zap.Int("retry", retries), zap.Duration("backoff", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}
		retries = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.connected.Store(true)
		c.logger.Info("feed connected", zap.String("url", c.cfg.URL))

		c.readLoop(ctx, conn)

		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.logger.Warn("feed disconnected")

		// 断开则重连
		if !sleep(ctx, c.cfg.RetryBackoff) {
			return
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

// readLoop 读取 WS 消息并分发事件。
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("feed read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.HandleMessage(msg)
	}
}

// pingLoop 按 PingInterval 发送 ping，pong 刷新读超时
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("feed ping failed", zap.Error(err))
				return
			}
		}
	}
}

// HandleMessage 解析一条消息（单个信号对象或信号数组），返回成功发布的数量。
// 格式错误的信号记录日志后丢弃，不影响同批其他信号。
func (c *Client) HandleMessage(raw []byte) int {
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			c.drop(err, raw)
			return 0
		}
	} else {
		items = []json.RawMessage{trimmed}
	}

	published := 0
	for _, item := range items {
		s, err := signal.Decode(item)
		if err != nil {
			c.drop(err, item)
			continue
		}
		payload, err := signal.Encode(s)
		if err != nil {
			c.drop(err, item)
			continue
		}
		if err := c.pub.Publish(bus.Message{Topic: signal.TopicSignal, Payload: payload, PublishedAt: time.Now()}); err != nil {
			c.monitor.RecordFeedMessage("rejected")
			c.logger.LogError(err, map[string]interface{}{"signal_id": s.ID})
			continue
		}
		c.accepted.Add(1)
		c.monitor.RecordFeedMessage("accepted")
		published++
	}
	return published
}

func (c *Client) drop(err error, raw []byte) {
	c.malformed.Add(1)
	c.monitor.RecordFeedMessage("malformed")
	c.logger.Warn("malformed feed message", zap.Error(err), zap.ByteString("raw", truncate(raw, 256)))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
