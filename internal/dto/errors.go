package dto

import "errors"

// Recoverable condition sentinels. These are absorbed at the worker boundary
// and never propagate as process-ending failures.
var (
	// ErrDataUnavailable means no bars exist for a symbol/range. The symbol is
	// excluded from the aggregate; only total symbol failure fails a run.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidParameter means a grid value is out of domain. The combination
	// is skipped and logged.
	ErrInvalidParameter = errors.New("invalid strategy parameter")

	// ErrComplianceViolation means a proposed trade would breach the PDT
	// ceiling. The trade is suppressed, not raised.
	ErrComplianceViolation = errors.New("pattern day trade ceiling would be exceeded")

	// ErrBrokerUnavailable means an order call failed. The iteration is
	// retried next poll and no trade record is created.
	ErrBrokerUnavailable = errors.New("broker call failed")
)
