// Package review implements the human side of reconciliation: listing
// queued keys and promoting them to approved or denied cache entries.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/event"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/store"
)

// Recorder stores review decisions. *history.Service implements it.
type Recorder interface {
	RecordDecision(ctx context.Context, d *history.Decision) error
}

// Service reads the review queue and writes decisions to the cache.
type Service struct {
	cache   store.CacheStore
	queue   store.QueueStore
	logger  *slog.Logger
	events  event.Publisher
	history Recorder
}

// NewService creates a review service.
func NewService(cache store.CacheStore, queue store.QueueStore, logger *slog.Logger) *Service {
	return &Service{
		cache:  cache,
		queue:  queue,
		logger: logger.With(slog.String("component", "review")),
		events: event.Discard,
	}
}

// SetEventBus sets the publisher for review.decided events.
func (s *Service) SetEventBus(p event.Publisher) {
	if p == nil {
		p = event.Discard
	}
	s.events = p
}

// SetHistory sets where decisions are recorded.
func (s *Service) SetHistory(r Recorder) {
	s.history = r
}

// Pending lists queued keys that have no cache entry yet, sorted by key.
func (s *Service) Pending(ctx context.Context) ([]Pending, error) {
	cache, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cache: %w", err)
	}
	queue, err := s.queue.Load()
	if err != nil {
		return nil, fmt.Errorf("loading queue: %w", err)
	}

	groups := group(queue)
	out := make([]Pending, 0, len(groups))
	for key, entries := range groups {
		if _, resolved := cache[key]; resolved {
			continue
		}
		out = append(out, merge(key, entries))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get returns the merged queue entries for key.
func (s *Service) Get(ctx context.Context, key string) (*Pending, error) {
	cache, err := s.cache.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cache: %w", err)
	}
	if _, resolved := cache[key]; resolved {
		return nil, ErrAlreadyResolved
	}
	return s.pending(key)
}

// Approve stores candidate index as the approved match for key and removes
// the key from the queue.
func (s *Service) Approve(ctx context.Context, key string, index int, reviewer string) (store.Entry, error) {
	p, err := s.pending(key)
	if err != nil {
		return store.Entry{}, err
	}
	if index < 0 || index >= len(p.Candidates) {
		return store.Entry{}, fmt.Errorf("%w: %d of %d", ErrInvalidCandidate, index, len(p.Candidates))
	}

	chosen := p.Candidates[index].Track
	entry := store.ApprovedEntry(chosen)
	if err := s.resolve(key, entry); err != nil {
		return store.Entry{}, err
	}

	s.decided(ctx, &history.Decision{
		Key:       key,
		Status:    string(store.StatusApproved),
		Candidate: &index,
		TrackID:   chosen.TrackID(),
		Reviewer:  reviewer,
	})
	return entry, nil
}

// Deny marks key as having no acceptable candidate and removes it from the
// queue.
func (s *Service) Deny(ctx context.Context, key string, reviewer string) (store.Entry, error) {
	if _, err := s.pending(key); err != nil {
		return store.Entry{}, err
	}

	entry := store.DeniedEntry()
	if err := s.resolve(key, entry); err != nil {
		return store.Entry{}, err
	}

	s.decided(ctx, &history.Decision{
		Key:      key,
		Status:   string(store.StatusDenied),
		Reviewer: reviewer,
	})
	return entry, nil
}

// Prune drops queue entries whose key already has a cache entry and returns
// how many were removed.
func (s *Service) Prune(ctx context.Context) (int, error) {
	cache, err := s.cache.Load()
	if err != nil {
		return 0, fmt.Errorf("loading cache: %w", err)
	}

	removed := 0
	err = s.queue.Update(func(q []store.QueueEntry) ([]store.QueueEntry, bool, error) {
		kept := make([]store.QueueEntry, 0, len(q))
		for _, e := range q {
			if _, resolved := cache[e.Key]; resolved {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		return kept, removed > 0, nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning queue: %w", err)
	}
	if removed > 0 {
		s.logger.Info("pruned resolved queue entries", "removed", removed)
	}
	return removed, nil
}

func (s *Service) pending(key string) (*Pending, error) {
	queue, err := s.queue.Load()
	if err != nil {
		return nil, fmt.Errorf("loading queue: %w", err)
	}
	entries := group(queue)[key]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	p := merge(key, entries)
	return &p, nil
}

// resolve writes entry under the cache lock, refusing keys that already
// have any entry, then drops the key's queue entries under the queue lock.
func (s *Service) resolve(key string, entry store.Entry) error {
	err := s.cache.Update(func(c store.Cache) (bool, error) {
		if _, ok := c[key]; ok {
			return false, ErrAlreadyResolved
		}
		c[key] = entry
		return true, nil
	})
	if err != nil {
		return err
	}

	err = s.queue.Update(func(q []store.QueueEntry) ([]store.QueueEntry, bool, error) {
		kept := make([]store.QueueEntry, 0, len(q))
		for _, e := range q {
			if e.Key != key {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) != len(q), nil
	})
	if err != nil {
		return fmt.Errorf("removing %q from queue: %w", key, err)
	}
	return nil
}

func (s *Service) decided(ctx context.Context, d *history.Decision) {
	s.logger.Info("review decision", "key", d.Key, "status", d.Status, "reviewer", d.Reviewer)

	data := map[string]any{
		"key":      d.Key,
		"status":   d.Status,
		"reviewer": d.Reviewer,
	}
	if d.Candidate != nil {
		data["candidate"] = *d.Candidate
		data["track_id"] = d.TrackID
	}
	s.events.Publish(event.Event{Type: event.ReviewDecided, Data: data})

	if s.history == nil {
		return
	}
	if err := s.history.RecordDecision(ctx, d); err != nil {
		s.logger.Warn("recording decision history", "key", d.Key, "error", err)
	}
}

func group(queue []store.QueueEntry) map[string][]store.QueueEntry {
	groups := make(map[string][]store.QueueEntry)
	for _, e := range queue {
		groups[e.Key] = append(groups[e.Key], e)
	}
	return groups
}

// merge combines every queue entry for one key. Candidates keep queue order
// and repeated catalog track ids are listed once, so indexes stay stable as
// later runs append more entries for the same key.
func merge(key string, entries []store.QueueEntry) Pending {
	p := Pending{
		Key:        key,
		Record:     entries[0].Record,
		Entries:    len(entries),
		QueuedAt:   entries[0].QueuedAt,
		Candidates: []Candidate{},
	}
	if p.Record == nil {
		p.Record = map[string]string{}
	}

	query := recordQuery(p.Record)
	seen := make(map[int64]bool)
	for _, e := range entries {
		if !e.QueuedAt.IsZero() && (p.QueuedAt.IsZero() || e.QueuedAt.Before(p.QueuedAt)) {
			p.QueuedAt = e.QueuedAt
		}
		for _, t := range e.Results {
			if id := t.TrackID(); id != 0 {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			p.Candidates = append(p.Candidates, Candidate{
				Index:      len(p.Candidates),
				Track:      t,
				Similarity: similarity(query, t),
			})
		}
	}
	return p
}

func recordQuery(row map[string]string) string {
	rec := library.RecordFromMap(row)
	return strings.ToLower(strings.TrimSpace(rec.Artist + " " + rec.Title))
}

func similarity(query string, t catalog.Track) float64 {
	if query == "" {
		return 0
	}
	cand := strings.ToLower(strings.TrimSpace(t.ArtistName() + " " + t.TrackName()))
	score := strutil.Similarity(query, cand, metrics.NewJaroWinkler())
	return math.Round(score*100) / 100
}
