package order

import "fmt"

// RiskAssessment 风险评估结果，零值不可接受
type RiskAssessment struct {
	Acceptable        bool
	Note              string
	MaxDrawdown       float64
	Volatility        float64
	ValueAtRisk       float64
	ExpectedShortfall float64
	Sharpe            float64
	Sortino           float64
	Beta              float64
	Alpha             float64
	Correlation       float64
}

// Accept 构造可接受的评估
func Accept(note string) RiskAssessment {
	return RiskAssessment{Acceptable: true, Note: note}
}

// Reject 构造拒绝的评估
func Reject(format string, args ...interface{}) RiskAssessment {
	return RiskAssessment{Acceptable: false, Note: fmt.Sprintf(format, args...)}
}
