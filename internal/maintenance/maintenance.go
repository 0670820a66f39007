// Package maintenance keeps the history database compact: periodic
// optimize, on-demand vacuum and age-based retention of runs and decisions.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Pruner deletes history rows older than a cutoff. *history.Service
// implements it.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (runs, decisions int64, err error)
}

// Status holds database maintenance status information.
type Status struct {
	DBFileSize     int64     `json:"db_file_size"`
	WALFileSize    int64     `json:"wal_file_size"`
	PageCount      int64     `json:"page_count"`
	PageSize       int64     `json:"page_size"`
	FreePages      int64     `json:"freelist_count"`
	LastOptimizeAt time.Time `json:"last_optimize_at,omitzero"`
	Retention      string    `json:"retention,omitempty"`
}

// PruneResult reports what a retention pass removed.
type PruneResult struct {
	Cutoff    time.Time `json:"cutoff"`
	Runs      int64     `json:"runs"`
	Decisions int64     `json:"decisions"`
}

// Service provides database maintenance operations.
type Service struct {
	db        *sql.DB
	dbPath    string
	pruner    Pruner
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu           sync.Mutex
	lastOptimize time.Time
}

// NewService creates a maintenance service. pruner may be nil, and a zero
// retention keeps history forever.
func NewService(db *sql.DB, dbPath string, pruner Pruner, retention time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		dbPath:    dbPath,
		pruner:    pruner,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	for pragma, dst := range map[string]*int64{
		"page_count":     &st.PageCount,
		"page_size":      &st.PageSize,
		"freelist_count": &st.FreePages,
	} {
		if err := s.db.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(dst); err != nil {
			return nil, fmt.Errorf("reading %s: %w", pragma, err)
		}
	}

	s.mu.Lock()
	st.LastOptimizeAt = s.lastOptimize
	s.mu.Unlock()
	if s.retention > 0 {
		st.Retention = s.retention.String()
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Debug("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.mu.Lock()
	s.lastOptimize = s.now()
	s.mu.Unlock()

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// PruneHistory deletes runs and decisions older than the configured
// retention. It is a no-op returning nil when retention is disabled.
func (s *Service) PruneHistory(ctx context.Context) (*PruneResult, error) {
	if s.retention <= 0 || s.pruner == nil {
		return nil, nil
	}
	return s.PruneBefore(ctx, s.now().Add(-s.retention))
}

// PruneBefore deletes runs and decisions older than cutoff.
func (s *Service) PruneBefore(ctx context.Context, cutoff time.Time) (*PruneResult, error) {
	if s.pruner == nil {
		return nil, fmt.Errorf("history pruning is not available")
	}
	runs, decisions, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if runs > 0 || decisions > 0 {
		s.logger.Info("pruned history",
			slog.Time("cutoff", cutoff),
			slog.Int64("runs", runs),
			slog.Int64("decisions", decisions))
	}
	return &PruneResult{Cutoff: cutoff, Runs: runs, Decisions: decisions}, nil
}

// RunOnce prunes expired history and then optimizes.
func (s *Service) RunOnce(ctx context.Context) error {
	if _, err := s.PruneHistory(ctx); err != nil {
		return fmt.Errorf("pruning history: %w", err)
	}
	return s.Optimize(ctx)
}

// StartScheduler runs RunOnce on a fixed interval until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduled maintenance failed", slog.Any("error", err))
			}
		}
	}
}
