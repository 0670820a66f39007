package review

import (
	"context"
	"fmt"

	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/store"
)

// KeyChange is one queue entry whose stored key differs from the key its
// original row derives to today.
type KeyChange struct {
	ID  string `json:"id"`
	Old string `json:"old"`
	New string `json:"new"`
}

// Rekey re-derives the key of every queue entry from its stored row and
// rewrites the entries whose key changed. With dryRun set the queue is left
// untouched and only the changes are reported. Entries with an empty row are
// skipped; there is nothing to derive from.
func (s *Service) Rekey(ctx context.Context, dryRun bool) ([]KeyChange, error) {
	var changes []KeyChange
	err := s.queue.Update(func(q []store.QueueEntry) ([]store.QueueEntry, bool, error) {
		for i := range q {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			if len(q[i].Record) == 0 {
				continue
			}
			key := library.DeriveKey(library.RecordFromMap(q[i].Record))
			if key == q[i].Key {
				continue
			}
			changes = append(changes, KeyChange{ID: q[i].ID, Old: q[i].Key, New: key})
			q[i].Key = key
		}
		return q, len(changes) > 0 && !dryRun, nil
	})
	if err != nil {
		return nil, fmt.Errorf("rekeying queue: %w", err)
	}
	if len(changes) > 0 && !dryRun {
		s.logger.Info("rekeyed queue entries", "changed", len(changes))
	}
	return changes, nil
}
