package venue

import "sync"

// EdgeTrigger 从交易场所的 bar 序号派生一个独立的就绪边沿，
// 让第二个消费者（后台价位循环）不会抢走主流水线的边沿。
type EdgeTrigger struct {
	src  Sequencer
	mu   sync.Mutex
	last uint64
}

func NewEdgeTrigger(src Sequencer) *EdgeTrigger {
	return &EdgeTrigger{src: src}
}

// Ready 每个新序号返回一次 true
func (e *EdgeTrigger) Ready() bool {
	seq := e.src.BarSequence()
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq == 0 || seq == e.last {
		return false
	}
	e.last = seq
	return true
}

func (e *EdgeTrigger) CurrentPrice() float64 { return e.src.CurrentPrice() }
