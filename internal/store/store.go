// Package store persists the resolution cache and the manual review queue.
//
// Both stores hold a single JSON document that is replaced as a whole on
// every write. Each store owns one exclusive lock that guards its full
// read-modify-write cycle; the two stores never share a lock.
package store

import (
	"time"

	"github.com/sydlexius/stationsync/internal/catalog"
)

// CacheStore persists the resolution cache.
type CacheStore interface {
	// Load returns the current document. A store that has never been written
	// returns an empty cache.
	Load() (Cache, error)
	// Save replaces the whole document.
	Save(Cache) error
	// Update runs fn on the current document while holding the store lock
	// and saves the result if fn reports a change.
	Update(fn func(Cache) (changed bool, err error)) error
}

// QueueStore persists the manual review queue.
type QueueStore interface {
	Load() ([]QueueEntry, error)
	Save([]QueueEntry) error
	// Append adds one entry under the queue lock.
	Append(QueueEntry) error
	// Update runs fn on the current queue while holding the store lock and
	// saves the returned slice if fn reports a change.
	Update(fn func([]QueueEntry) ([]QueueEntry, bool, error)) error
}

// prepareQueueEntry fills the ID and timestamp of a new queue entry.
func prepareQueueEntry(e QueueEntry, newID func() string, now func() time.Time) QueueEntry {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = now().UTC()
	}
	if e.Record == nil {
		e.Record = map[string]string{}
	}
	if e.Results == nil {
		e.Results = []catalog.Track{}
	}
	return e
}
