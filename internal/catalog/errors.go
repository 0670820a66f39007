package catalog

import (
	"fmt"
	"time"
)

// ErrUnavailable indicates a transport-level failure talking to the catalog:
// network errors, timeouts, rate limiting, or unexpected HTTP status.
type ErrUnavailable struct {
	Endpoint   string
	StatusCode int
	Cause      error
	RetryAfter time.Duration
}

func (e *ErrUnavailable) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog %s unavailable (status %d): %v", e.Endpoint, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("catalog %s unavailable: %v", e.Endpoint, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }
