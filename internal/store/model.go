package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sydlexius/stationsync/internal/catalog"
)

// Status is the resolution state of a cache entry.
type Status string

// Resolution states. A key with any entry is resolved; the engine never
// revisits it.
const (
	StatusAuto     Status = "auto"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAuto, StatusApproved, StatusDenied:
		return true
	}
	return false
}

const statusField = "status"

// Entry is a resolution cache value: the matched catalog record's fields plus
// a status. Denied entries carry no fields. On disk the fields and status
// share one flat JSON object.
type Entry struct {
	Status Status
	Fields catalog.Track
}

// AutoEntry builds an entry for a match found without human input.
func AutoEntry(t catalog.Track) Entry {
	return Entry{Status: StatusAuto, Fields: t.Clone()}
}

// ApprovedEntry builds an entry for a candidate a reviewer selected.
func ApprovedEntry(t catalog.Track) Entry {
	return Entry{Status: StatusApproved, Fields: t.Clone()}
}

// DeniedEntry builds an entry for a key whose candidates were all rejected.
func DeniedEntry() Entry {
	return Entry{Status: StatusDenied}
}

// MarshalJSON writes the entry as a flat object with a "status" member.
func (e Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		if k == statusField {
			continue
		}
		m[k] = v
	}
	m[statusField] = e.Status
	return marshalDocument(m, false)
}

// UnmarshalJSON reads a flat object, splitting "status" from the fields.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return err
	}
	status, _ := m[statusField].(string)
	delete(m, statusField)

	e.Status = Status(status)
	e.Fields = nil
	if len(m) > 0 {
		e.Fields = catalog.Track(m)
	}
	return nil
}

// Clone returns a copy of the entry that shares no maps with e.
func (e Entry) Clone() Entry {
	out := Entry{Status: e.Status}
	if e.Fields != nil {
		out.Fields = e.Fields.Clone()
	}
	return out
}

// Cache maps identity keys to resolution entries.
type Cache map[string]Entry

// Clone returns a deep copy of the cache.
func (c Cache) Clone() Cache {
	out := make(Cache, len(c))
	for k, e := range c {
		out[k] = e.Clone()
	}
	return out
}

// QueueEntry is a record waiting for a human to pick among its candidates.
type QueueEntry struct {
	ID       string            `json:"id,omitempty"`
	Key      string            `json:"key"`
	Record   map[string]string `json:"record"`
	Results  []catalog.Track   `json:"results"`
	QueuedAt time.Time         `json:"queued_at,omitzero"`
}

// QueuedKeys returns the set of keys present in a queue document.
func QueuedKeys(entries []QueueEntry) map[string]struct{} {
	keys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		keys[e.Key] = struct{}{}
	}
	return keys
}

// marshalDocument encodes v with two-space indentation (when indent is set)
// and without HTML escaping, so artist names like "Simon & Garfunkel" stay
// readable on disk.
func marshalDocument(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
