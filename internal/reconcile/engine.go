// Package reconcile resolves library records against the catalog, storing
// confident matches in the resolution cache and sending the rest to the
// manual review queue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/event"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/store"
)

// Resolver is the match-decision surface the engine consumes.
// *catalog.Resolver implements it.
type Resolver interface {
	LookupByIdentifier(ctx context.Context, isrc string) (catalog.Track, bool)
	Search(ctx context.Context, artist, title string) []catalog.Track
}

// Recorder stores finished runs. *history.Service implements it.
type Recorder interface {
	RecordRun(ctx context.Context, r *history.Run) error
}

// Engine runs reconciliation batches. Only one batch runs at a time.
type Engine struct {
	resolver   Resolver
	cache      store.CacheStore
	queue      store.QueueStore
	maxWorkers int
	logger     *slog.Logger
	events     event.Publisher
	history    Recorder

	mu      sync.Mutex
	current *RunResult
}

// NewEngine creates an engine. A non-positive maxWorkers uses
// DefaultMaxWorkers.
func NewEngine(resolver Resolver, cache store.CacheStore, queue store.QueueStore, maxWorkers int, logger *slog.Logger) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Engine{
		resolver:   resolver,
		cache:      cache,
		queue:      queue,
		maxWorkers: maxWorkers,
		logger:     logger.With(slog.String("component", "reconcile")),
		events:     event.Discard,
	}
}

// SetEventBus sets the publisher for run and review-needed events.
func (e *Engine) SetEventBus(p event.Publisher) {
	if p == nil {
		p = event.Discard
	}
	e.events = p
}

// SetHistory sets where finished runs are recorded.
func (e *Engine) SetHistory(r Recorder) {
	e.history = r
}

// Run reconciles records and blocks until the batch is finished.
func (e *Engine) Run(ctx context.Context, records []library.Record) (*RunResult, error) {
	result, err := e.begin("")
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, result, records)
}

// RunFile loads a library file and reconciles it.
func (e *Engine) RunFile(ctx context.Context, path string) (*RunResult, error) {
	records, err := library.Load(path)
	if err != nil {
		return nil, err
	}
	result, err := e.begin(path)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, result, records)
}

// StartFile loads a library file and reconciles it in the background.
// It returns a snapshot of the run as started; poll Status for progress.
func (e *Engine) StartFile(ctx context.Context, path string) (*RunResult, error) {
	records, err := library.Load(path)
	if err != nil {
		return nil, err
	}
	result, err := e.begin(path)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	snapshot := *result
	e.mu.Unlock()

	go func() {
		if _, err := e.execute(ctx, result, records); err != nil {
			e.logger.Error("background reconciliation failed", "run_id", result.ID, "error", err)
		}
	}()
	return &snapshot, nil
}

// Status returns a copy of the current or most recent run, or nil.
func (e *Engine) Status() *RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	snapshot := *e.current
	return &snapshot
}

func (e *Engine) begin(source string) (*RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Status == StatusRunning {
		return nil, ErrRunInProgress
	}
	e.current = &RunResult{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	return e.current, nil
}

func (e *Engine) execute(ctx context.Context, result *RunResult, records []library.Record) (*RunResult, error) {
	logger := e.logger.With(slog.String("run_id", result.ID))
	logger.Info("reconciliation started", "records", len(records), "source", result.Source)

	err := e.reconcile(ctx, logger, result, records)

	e.mu.Lock()
	now := time.Now().UTC()
	result.FinishedAt = &now
	result.Status = StatusCompleted
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
	}
	final := *result
	e.mu.Unlock()

	logger.Info("reconciliation finished",
		"status", final.Status,
		"total", final.Total,
		"skipped", final.Skipped,
		"auto", final.Auto,
		"queued", final.Queued,
		"requeued", final.Requeued,
		"failed", final.Failed,
		"changed", final.Changed,
		"duration", now.Sub(final.StartedAt).Round(time.Millisecond).String(),
	)

	e.events.Publish(event.Event{
		Type: event.ReconcileCompleted,
		Data: map[string]any{
			"run_id":   final.ID,
			"status":   final.Status,
			"source":   final.Source,
			"total":    final.Total,
			"skipped":  final.Skipped,
			"auto":     final.Auto,
			"queued":   final.Queued,
			"requeued": final.Requeued,
			"failed":   final.Failed,
			"changed":  final.Changed,
		},
	})
	e.record(logger, &final)

	return result, err
}

// reconcile is the batch algorithm. The cache snapshot taken here is the
// only cache read until the final flush; the queue is appended to from the
// workers as each decision is made.
func (e *Engine) reconcile(ctx context.Context, logger *slog.Logger, result *RunResult, records []library.Record) error {
	snapshot, err := e.cache.Load()
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}
	existing, err := e.queue.Load()
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}

	w := &worker{
		engine:  e,
		logger:  logger,
		result:  result,
		matches: make(map[string]store.Entry),
		queued:  store.QueuedKeys(existing),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)

	for _, rec := range records {
		key := library.DeriveKey(rec)

		e.mu.Lock()
		result.Total++
		_, resolved := snapshot[key]
		if resolved {
			result.Skipped++
		}
		e.mu.Unlock()

		if resolved {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return w.process(gctx, key, rec) })
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	// Matches found before a fatal error are still valid and are kept.
	if err := e.flush(logger, result, w.matches); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// flush writes the accumulated matches in one cache update. Keys that gained
// an entry since the snapshot (an approve or deny made during the run) keep
// that entry.
func (e *Engine) flush(logger *slog.Logger, result *RunResult, matches map[string]store.Entry) error {
	if len(matches) == 0 {
		return nil
	}

	inserted := 0
	err := e.cache.Update(func(c store.Cache) (bool, error) {
		for key, entry := range matches {
			if _, ok := c[key]; ok {
				logger.Debug("key resolved during run, keeping stored entry", "key", key)
				continue
			}
			c[key] = entry
			inserted++
		}
		return inserted > 0, nil
	})
	if err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}

	e.mu.Lock()
	result.Changed = inserted > 0
	e.mu.Unlock()
	logger.Debug("cache flushed", "matches", len(matches), "inserted", inserted)
	return nil
}

func (e *Engine) record(logger *slog.Logger, r *RunResult) {
	if e.history == nil {
		return
	}
	run := &history.Run{
		ID:        r.ID,
		Source:    r.Source,
		StartedAt: r.StartedAt,
		Total:     r.Total,
		Skipped:   r.Skipped,
		Auto:      r.Auto,
		Queued:    r.Queued,
		Requeued:  r.Requeued,
		Failed:    r.Failed,
		Changed:   r.Changed,
		Error:     r.Error,
	}
	if r.FinishedAt != nil {
		run.FinishedAt = *r.FinishedAt
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.history.RecordRun(ctx, run); err != nil {
		logger.Warn("recording run history", "error", err)
	}
}
