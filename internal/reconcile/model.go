package reconcile

import (
	"errors"
	"time"
)

// DefaultMaxWorkers bounds concurrent resolutions when the caller sets no
// limit.
const DefaultMaxWorkers = 10

// ErrRunInProgress is returned when a run is requested while another one is
// still executing on the same engine.
var ErrRunInProgress = errors.New("reconciliation already in progress")

// Run states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunResult summarizes one reconciliation batch.
type RunResult struct {
	ID         string     `json:"id"`
	Source     string     `json:"source,omitempty"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Total      int        `json:"total"`
	Skipped    int        `json:"skipped"`
	Auto       int        `json:"auto"`
	Queued     int        `json:"queued"`
	Requeued   int        `json:"requeued"`
	Failed     int        `json:"failed"`
	// Changed reports whether the stored cache document was modified.
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}
