package engine

import "time"

// Stage 迭代阶段
type Stage int

const (
	StageNone Stage = iota
	StageSession
	StageGenerate
	StagePositionGate
	StagePendingAudit
	StageFilter
	StageExecute
	StageComplete
	StageCancelled
	StagePanic
)

var stageNames = map[Stage]string{
	StageNone:         "none",
	StageSession:      "session",
	StageGenerate:     "generate",
	StagePositionGate: "position_gate",
	StagePendingAudit: "pending_audit",
	StageFilter:       "filter",
	StageExecute:      "execute",
	StageComplete:     "complete",
	StageCancelled:    "cancelled",
	StagePanic:        "panic",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// Outcome 一轮迭代的结果
type Outcome struct {
	StoppedAt   Stage
	Reason      string
	RiskFlagged int
	Reconciled  int
	Generated   int
	Accepted    int
	Filtered    int
	Executed    int
	Duration    time.Duration
}
