package risk

import "errors"

var (
	ErrSingleExceed   = errors.New("single order exceed")
	ErrNotionalExceed = errors.New("order notional exceed")
	ErrDailyExceed    = errors.New("daily volume exceed")
	ErrNetExceed      = errors.New("net exposure exceed")
	ErrOrderLoss      = errors.New("order open loss exceed")
	ErrHoldingTooLong = errors.New("holding time exceed")
	ErrStaleWorking   = errors.New("working order too old")
	ErrDailyLoss      = errors.New("daily loss limit hit")
	ErrOpenLoss       = errors.New("open loss limit hit")
	ErrSnapshot       = errors.New("risk snapshot unavailable")
)
