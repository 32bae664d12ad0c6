// Package signal 交易信号、待处理信号注册表以及信号策略接口。
package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicSignal 信号在总线上的主题
const TopicSignal = "signal"

var (
	ErrMalformed       = errors.New("malformed signal")
	ErrInvalidSignal   = errors.New("invalid signal")
	ErrDuplicateSignal = errors.New("duplicate signal id")
)

// TradeSignal 带方向的交易想法。
// AttachedIDs 引用父信号的 ID，只是引用，不拥有父信号。
type TradeSignal struct {
	ID          string    `json:"id"`
	Key         string    `json:"signalKey"`
	Buy         bool      `json:"buySignal"`
	Sell        bool      `json:"sellSignal"`
	Price       float64   `json:"price"`
	StopLoss    float64   `json:"stopLoss,omitempty"`
	TakeProfit  float64   `json:"takeProfit,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	Weight      float64   `json:"signalWeight,omitempty"`
	AttachedIDs []string  `json:"attachedSignalIds,omitempty"`
	System      string    `json:"tradeSystemName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewID 生成全局唯一的信号 ID
func NewID() string {
	return uuid.NewString()
}

// New 创建信号并分配 ID
func New(key string, price float64) TradeSignal {
	return TradeSignal{
		ID:        NewID(),
		Key:       key,
		Price:     price,
		CreatedAt: time.Now(),
	}
}

// Attach 返回附带父信号引用的副本
func (s TradeSignal) Attach(parentIDs ...string) TradeSignal {
	s.AttachedIDs = append(append([]string(nil), s.AttachedIDs...), parentIDs...)
	return s
}

// Validate 检查必填字段
func (s TradeSignal) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return fmt.Errorf("%w: signalKey is required", ErrMalformed)
	}
	if s.Price <= 0 {
		return fmt.Errorf("%w: price must be > 0", ErrMalformed)
	}
	if s.Buy && s.Sell {
		return fmt.Errorf("%w: buySignal and sellSignal are exclusive", ErrMalformed)
	}
	for _, id := range s.AttachedIDs {
		if id == "" {
			return fmt.Errorf("%w: empty attached id", ErrMalformed)
		}
	}
	return nil
}

// Encode 编码为线上 JSON
func Encode(s TradeSignal) ([]byte, error) {
	return json.Marshal(s)
}

// Decode 解析线上 JSON；缺少 ID 时分配新 ID，缺少时间时取当前时间
func Decode(data []byte) (TradeSignal, error) {
	var s TradeSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return TradeSignal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := s.Validate(); err != nil {
		return TradeSignal{}, err
	}
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return s, nil
}
