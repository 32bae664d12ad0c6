package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/venue"
)

// DefaultSnapshotInterval 会话内保存快照的间隔
const DefaultSnapshotInterval = 10 * time.Minute

// Kind 快照类型
type Kind string

const (
	KindOpen   Kind = "open"
	KindUpdate Kind = "update"
	KindClose  Kind = "close"
)

// Snapshot 提交给 Recorder 的会话记录
type Snapshot struct {
	SessionID string
	Kind      Kind
	System    string
	Symbol    string
	Window    string
	OpenedAt  time.Time
	Time      time.Time
	Stats     venue.Stats
	Position  venue.Position
}

// Recorder 会话持久化接口
type Recorder interface {
	Record(s Snapshot) error
}

// StatsSource 会话统计来源
type StatsSource interface {
	Stats() venue.Stats
	Position(symbol string) (venue.Position, error)
}

// Config 会话配置
type Config struct {
	System           string
	Symbol           string
	SnapshotInterval time.Duration
}

// Manager 会话管理
type Manager struct {
	cfg      Config
	calendar *Calendar
	source   StatsSource
	recorder Recorder
	logger   *logger.Logger
	monitor  *monitor.Monitor

	mu       sync.Mutex
	current  *state
	lastSave time.Time
}

type state struct {
	id       string
	key      string
	window   Window
	openedAt time.Time
}

// NewManager 创建会话管理器，recorder 为空时写日志
func NewManager(cfg Config, cal *Calendar, src StatsSource, rec Recorder, log *logger.Logger, mon *monitor.Monitor) (*Manager, error) {
	if cal == nil {
		return nil, errors.New("session calendar is required")
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	l := logger.OrNop(log).Named("session")
	if rec == nil {
		rec = NewLogRecorder(l)
	}
	return &Manager{cfg: cfg, calendar: cal, source: src, recorder: rec, logger: l, monitor: mon}, nil
}

// Manage 在每轮迭代开始时调用。处于交易时段返回 true；
// 离开时段时关闭当前会话并返回 false。
func (m *Manager) Manage(now time.Time) bool {
	w, key, open := m.calendar.Lookup(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !open {
		if m.current != nil {
			m.closeLocked(now)
		}
		return false
	}
	if m.current != nil && m.current.key != key {
		m.closeLocked(now)
	}
	if m.current == nil {
		m.current = &state{id: uuid.NewString(), key: key, window: w, openedAt: now}
		m.lastSave = now
		m.saveLocked(KindOpen, now)
		m.monitor.RecordSessionChange(string(KindOpen))
		m.logger.Info("session opened", zap.String("session_id", m.current.id), zap.String("window", w.String()))
		return true
	}
	if now.Sub(m.lastSave) >= m.cfg.SnapshotInterval {
		m.lastSave = now
		m.saveLocked(KindUpdate, now)
	}
	return true
}

// Close 主动关闭当前会话（停止时调用），没有会话时无操作
func (m *Manager) Close(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.closeLocked(now)
}

// Current 当前会话 ID
func (m *Manager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", false
	}
	return m.current.id, true
}

func (m *Manager) closeLocked(now time.Time) error {
	err := m.saveLocked(KindClose, now)
	m.monitor.RecordSessionChange(string(KindClose))
	m.logger.Info("session closed", zap.String("session_id", m.current.id))
	m.current = nil
	return err
}

func (m *Manager) saveLocked(kind Kind, now time.Time) error {
	snap := Snapshot{
		SessionID: m.current.id,
		Kind:      kind,
		System:    m.cfg.System,
		Symbol:    m.cfg.Symbol,
		Window:    m.current.window.String(),
		OpenedAt:  m.current.openedAt,
		Time:      now,
	}
	if m.source != nil {
		snap.Stats = m.source.Stats()
		if pos, err := m.source.Position(m.cfg.Symbol); err == nil {
			snap.Position = pos
		}
	}
	if err := m.recorder.Record(snap); err != nil {
		m.logger.LogError(err, map[string]interface{}{"session_id": snap.SessionID, "kind": string(kind)})
		return err
	}
	return nil
}

// LogRecorder 把快照写到结构化日志
type LogRecorder struct {
	logger *logger.Logger
}

func NewLogRecorder(log *logger.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.OrNop(log)}
}

func (r *LogRecorder) Record(s Snapshot) error {
	r.logger.Info("session_snapshot",
		zap.String("session_id", s.SessionID),
		zap.String("kind", string(s.Kind)),
		zap.String("system", s.System),
		zap.String("window", s.Window),
		zap.Float64("profit", s.Stats.Profit),
		zap.Int("trades", s.Stats.TotalTrades),
		zap.Float64("position", s.Position.Quantity),
		zap.Time("opened_at", s.OpenedAt),
	)
	return nil
}
