package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/event"
	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/store"
)

// worker holds the per-run state shared by the resolution goroutines.
type worker struct {
	engine *Engine
	logger *slog.Logger
	result *RunResult

	mu      sync.Mutex
	matches map[string]store.Entry
	queued  map[string]struct{}
}

// process resolves one record. A panic is contained to the record; only a
// queue write failure is returned. A record whose catalog calls were cut
// short by cancellation is left unresolved for the next run.
func (w *worker) process(ctx context.Context, key string, rec library.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("record resolution panicked",
				"key", key,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			w.count(func(r *RunResult) { r.Failed++ })
			err = nil
		}
	}()

	if ctx.Err() != nil {
		return nil
	}

	if track, ok := w.engine.resolver.LookupByIdentifier(ctx, rec.ISRC); ok {
		w.match(key, track, "identifier")
		return nil
	}
	if ctx.Err() != nil {
		w.interrupted(key)
		return nil
	}

	candidates := w.engine.resolver.Search(ctx, rec.Artist, rec.Title)
	if ctx.Err() != nil {
		w.interrupted(key)
		return nil
	}
	if len(candidates) == 1 {
		w.match(key, candidates[0], "search")
		return nil
	}
	return w.enqueue(key, rec, candidates)
}

// interrupted drops a record whose "no results" may only mean the context
// was cancelled mid-call. Queuing it would put an empty candidate list in
// front of a reviewer.
func (w *worker) interrupted(key string) {
	w.logger.Debug("record left unresolved, run cancelled", "key", key)
}

func (w *worker) match(key string, track catalog.Track, via string) {
	w.mu.Lock()
	w.matches[key] = store.AutoEntry(track)
	w.mu.Unlock()

	w.count(func(r *RunResult) { r.Auto++ })
	w.logger.Debug("record matched", "key", key, "via", via, "track_id", track.TrackID())
}

func (w *worker) enqueue(key string, rec library.Record, candidates []catalog.Track) error {
	w.mu.Lock()
	_, requeued := w.queued[key]
	w.queued[key] = struct{}{}
	w.mu.Unlock()

	if requeued {
		w.logger.Warn("key already waiting for review, queuing again", "key", key)
	}

	entry := store.QueueEntry{
		Key:     key,
		Record:  rec.Map(),
		Results: candidates,
	}
	if err := w.engine.queue.Append(entry); err != nil {
		return fmt.Errorf("appending %q to review queue: %w", key, err)
	}

	w.count(func(r *RunResult) {
		r.Queued++
		if requeued {
			r.Requeued++
		}
	})
	w.logger.Debug("record queued for review", "key", key, "candidates", len(candidates))

	w.engine.events.Publish(event.Event{
		Type: event.ReviewNeeded,
		Data: map[string]any{
			"run_id":     w.result.ID,
			"key":        key,
			"artist":     rec.Artist,
			"title":      rec.Title,
			"candidates": len(candidates),
		},
	})
	return nil
}

func (w *worker) count(fn func(*RunResult)) {
	w.engine.mu.Lock()
	fn(w.result)
	w.engine.mu.Unlock()
}
