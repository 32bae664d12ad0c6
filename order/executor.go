package order

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/infrastructure/monitor"
	"signal-forge-core/internal/assert"
)

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// 记住多少个已终结的 ClientID，用于拒绝重复提交
	TerminalMemory int `yaml:"terminalMemory"`
}

// Executor 将通过风控的待发订单提交到交易场所，并对活跃订单对账
type Executor struct {
	gw      Gateway
	proc    Processor
	sm      *StateMachine
	logger  *logger.Logger
	monitor *monitor.Monitor

	terminal *boundedSet
}

// NewExecutor 创建执行器，proc 为空时使用 DefaultProcessor
func NewExecutor(gw Gateway, proc Processor, cfg ExecutorConfig, log *logger.Logger, mon *monitor.Monitor) (*Executor, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if proc == nil {
		proc = DefaultProcessor{}
	}
	if cfg.TerminalMemory <= 0 {
		cfg.TerminalMemory = 4096
	}
	return &Executor{
		gw:       gw,
		proc:     proc,
		sm:       NewStateMachine(),
		logger:   logger.OrNop(log).Named("executor"),
		monitor:  mon,
		terminal: newBoundedSet(cfg.TerminalMemory),
	}, nil
}

// Submit 逐个提交，返回成功的已执行订单；全部失败时返回 nil。
// 单个订单的交易场所错误只记录日志，本次迭代内不重试。
func (e *Executor) Submit(pending []PendingOrder) []ExecutedOrder {
	var out []ExecutedOrder
	for _, p := range pending {
		if p.ClientID != "" && e.terminal.Has(p.ClientID) {
			e.logger.LogOrder("resubmit_refused", p.ClientID, map[string]interface{}{
				"stage": "execute",
			})
			continue
		}

		ack, err := e.execute(p)
		if err != nil {
			e.monitor.RecordVenueError("submit")
			e.monitor.RecordOrderRejected()
			e.logger.LogError(err, map[string]interface{}{
				"stage":     "execute",
				"client_id": p.ClientID,
				"symbol":    p.Symbol,
			})
			continue
		}
		e.monitor.RecordOrderSubmitted()

		if ack.Status == StatusRejected || ack.Status == StatusCancelled {
			e.terminal.Add(p.ClientID)
			e.monitor.RecordOrderRejected()
			e.logger.LogOrder("venue_rejected", p.ClientID, map[string]interface{}{
				"stage":  "execute",
				"status": string(ack.Status),
				"reason": ack.Reason,
			})
			continue
		}

		executed := fromAck(p, ack)
		if executed.Status == StatusFilled {
			e.monitor.RecordOrderFilled()
		}
		e.logger.LogOrder("executed", executed.ID, map[string]interface{}{
			"client_id": p.ClientID,
			"status":    string(executed.Status),
			"filled":    executed.FilledQty,
			"requested": executed.RequestedQty,
			"price":     executed.FillPrice,
		})
		out = append(out, executed)
	}
	return out
}

// Reconcile 根据交易场所状态重新评估活跃订单，返回状态有变化的订单。
// 已 CANCELLED/REJECTED 的订单直接跳过。
func (e *Executor) Reconcile(active []ExecutedOrder) []ExecutedOrder {
	var changed []ExecutedOrder
	for _, local := range active {
		if local.IsTerminal() {
			e.terminal.Add(local.ClientID)
			continue
		}

		remote, err := e.gw.QueryOrder(local.ID)
		if err != nil {
			e.monitor.RecordVenueError("query")
			e.logger.LogError(err, map[string]interface{}{
				"stage":    "manage_active",
				"order_id": local.ID,
			})
			continue
		}

		if err := e.sm.ValidateTransition(local.Status, remote.Status); err != nil {
			assert.Violation(e.logger, "venue reported illegal transition", map[string]interface{}{
				"order_id": local.ID,
				"from":     string(local.Status),
				"to":       string(remote.Status),
			})
			continue
		}

		if !hasChanged(local, remote) {
			continue
		}

		merged := merge(local, remote)
		if merged.IsTerminal() {
			e.terminal.Add(merged.ClientID)
		}
		if local.Status != StatusFilled && merged.Status == StatusFilled {
			e.monitor.RecordOrderFilled()
		}
		e.logger.Debug("active order changed",
			zap.String("order_id", merged.ID),
			zap.String("from", string(local.Status)),
			zap.String("to", string(merged.Status)))
		changed = append(changed, merged)
	}
	return changed
}

// execute 捕获处理器 panic，当作一次交易场所失败
func (e *Executor) execute(p PendingOrder) (ack Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("order processor panic: %v", r)
		}
	}()
	return e.proc.Execute(e.gw, p)
}

func fromAck(p PendingOrder, ack Ack) ExecutedOrder {
	id := ack.OrderID
	if id == "" {
		id = p.ClientID
	}
	status := StatusPartial
	if FullyFilled(ack.FilledQty, p.Quantity) {
		status = StatusFilled
	}
	price := ack.FillPrice
	if price == 0 {
		price = p.Price
	}
	entry := ack.Time
	if entry.IsZero() {
		entry = p.CreatedAt
	}
	return ExecutedOrder{
		ID:           id,
		ClientID:     p.ClientID,
		Symbol:       p.Symbol,
		Account:      p.Account,
		Side:         p.Side,
		FillPrice:    price,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		FilledQty:    ack.FilledQty,
		RequestedQty: p.Quantity,
		Risk:         p.Risk,
		EntryTime:    entry,
		Status:       status,
	}
}

func hasChanged(local, remote ExecutedOrder) bool {
	return local.Status != remote.Status ||
		local.FilledQty != remote.FilledQty ||
		!local.ExitTime.Equal(remote.ExitTime)
}

// merge 以交易场所视图为准，保留本地的风险评估与请求信息
func merge(local, remote ExecutedOrder) ExecutedOrder {
	out := local
	out.Status = remote.Status
	out.FilledQty = remote.FilledQty
	if remote.FillPrice != 0 {
		out.FillPrice = remote.FillPrice
	}
	out.ExitTime = remote.ExitTime
	out.ExitPrice = remote.ExitPrice
	return out
}
