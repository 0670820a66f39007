package review

import (
	"errors"
	"time"

	"github.com/sydlexius/stationsync/internal/catalog"
)

// Errors returned by the review service.
var (
	ErrNotFound         = errors.New("key is not waiting for review")
	ErrAlreadyResolved  = errors.New("key is already resolved")
	ErrInvalidCandidate = errors.New("candidate index out of range")
)

// Candidate is one catalog record offered for a queued key.
type Candidate struct {
	Index int           `json:"index"`
	Track catalog.Track `json:"track"`
	// Similarity is the Jaro-Winkler score of the candidate's artist and
	// title against the library row. Display only.
	Similarity float64 `json:"similarity"`
}

// Pending is every queue entry for one key, merged.
type Pending struct {
	Key        string            `json:"key"`
	Record     map[string]string `json:"record"`
	Candidates []Candidate       `json:"candidates"`
	Entries    int               `json:"entries"`
	QueuedAt   time.Time         `json:"queued_at,omitzero"`
}
