// Package history keeps an audit log of reconciliation runs and review
// decisions in SQLite. It is never consulted to decide whether a key is
// resolved; the cache document is the only source of truth for that.
package history

import "time"

// Run is one reconciliation batch.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Skipped    int       `json:"skipped"`
	Auto       int       `json:"auto"`
	Queued     int       `json:"queued"`
	Requeued   int       `json:"requeued"`
	Failed     int       `json:"failed"`
	Changed    bool      `json:"changed"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Decision is one approve or deny made on the review surface.
type Decision struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Candidate *int      `json:"candidate,omitempty"`
	TrackID   int64     `json:"track_id,omitempty"`
	Reviewer  string    `json:"reviewer,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
