// Package assert 报告不变量被破坏的情况。
//
// 以 -tags debug 构建时 Violation 直接 panic；生产构建只记录 error 日志，
// 由调用方丢弃出问题的条目后继续运行。
package assert

import (
	"fmt"

	"signal-forge-core/infrastructure/logger"
)

// Violation 报告一次不变量破坏
func Violation(log *logger.Logger, what string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["violation"] = what
	logger.OrNop(log).LogError(fmt.Errorf("invariant violated: %s", what), fields)
	if panicOnViolation {
		panic("invariant violated: " + what)
	}
}
