package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	runColumns      = `id, source, started_at, finished_at, total, skipped, auto, queued, requeued, failed, changed, error`
	decisionColumns = `id, key, status, candidate, track_id, reviewer, decided_at`

	// DefaultListLimit bounds ListRuns when the caller passes no limit.
	DefaultListLimit = 50
)

// Service records and lists history rows.
type Service struct {
	db *sql.DB
}

// NewService creates a history service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecordRun inserts a finished run. A missing ID is generated.
func (s *Service) RecordRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = r.StartedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Source,
		formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Total, r.Skipped, r.Auto, r.Queued, r.Requeued, r.Failed,
		boolToInt(r.Changed), r.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RecordDecision inserts a review decision.
func (s *Service) RecordDecision(ctx context.Context, d *Decision) error {
	if d.Key == "" {
		return fmt.Errorf("decision key is required")
	}
	if d.Status != "approved" && d.Status != "denied" {
		return fmt.Errorf("decision status must be approved or denied, got %q", d.Status)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}

	var candidate, trackID any
	if d.Candidate != nil {
		candidate = *d.Candidate
	}
	if d.TrackID != 0 {
		trackID = d.TrackID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Key, d.Status, candidate, trackID, d.Reviewer, formatTime(d.DecidedAt))
	if err != nil {
		return fmt.Errorf("recording decision: %w", err)
	}
	return nil
}

// ListDecisions returns decisions for key, oldest first. An empty key lists
// every decision.
func (s *Service) ListDecisions(ctx context.Context, key string) ([]Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions`
	var args []any
	if key != "" {
		query += ` WHERE key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY decided_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	decisions := []Decision{}
	for rows.Next() {
		var d Decision
		var candidate, trackID sql.NullInt64
		var decidedAt string
		if err := rows.Scan(&d.ID, &d.Key, &d.Status, &candidate, &trackID, &d.Reviewer, &decidedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		if candidate.Valid {
			c := int(candidate.Int64)
			d.Candidate = &c
		}
		if trackID.Valid {
			d.TrackID = trackID.Int64
		}
		d.DecidedAt = parseTime(decidedAt)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Prune deletes runs that started and decisions that were made before
// cutoff. It returns how many rows of each were removed.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (runs, decisions int64, err error) {
	before := formatTime(cutoff)

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before)
	if err != nil {
		return 0, 0, fmt.Errorf("pruning runs: %w", err)
	}
	runs, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM decisions WHERE decided_at < ?`, before)
	if err != nil {
		return runs, 0, fmt.Errorf("pruning decisions: %w", err)
	}
	decisions, _ = res.RowsAffected()
	return runs, decisions, nil
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var startedAt, finishedAt string
	var changed int
	err := row.Scan(
		&r.ID, &r.Source, &startedAt, &finishedAt,
		&r.Total, &r.Skipped, &r.Auto, &r.Queued, &r.Requeued, &r.Failed,
		&changed, &r.Error,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = parseTime(finishedAt)
	r.Changed = changed != 0
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
