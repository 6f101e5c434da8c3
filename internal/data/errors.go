package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrHistoryClosed  = errors.New("history store is closed")
	ErrJobIDRequired  = errors.New("job_id is required")
	ErrNotTerminalJob = errors.New("only terminal jobs are recorded in history")
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

func normalizeHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
