// Package templates renders the review pages as templ components. The
// *_templ.go files are generated from the .templ sources by templ generate.
package templates

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/a-h/templ"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/library"
	"github.com/sydlexius/stationsync/internal/review"
)

// Field is a name/value row.
type Field struct {
	Name  string
	Value string
}

// ListItem is one row of the queue page.
type ListItem struct {
	Key        string
	Artist     string
	Title      string
	Candidates int
	QueuedAt   time.Time
}

// CandidateView is one candidate card on the item page.
type CandidateView struct {
	Index      int
	Artist     string
	Title      string
	Album      string
	ArtworkURL string
	PreviewURL string
	Similarity float64
	Fields     []Field
}

// ReviewListPage renders the queue.
func ReviewListPage(basePath string, pending []review.Pending) templ.Component {
	items := make([]ListItem, 0, len(pending))
	for _, p := range pending {
		rec := library.RecordFromMap(p.Record)
		items = append(items, ListItem{
			Key:        p.Key,
			Artist:     rec.Artist,
			Title:      rec.Title,
			Candidates: len(p.Candidates),
			QueuedAt:   p.QueuedAt,
		})
	}
	return reviewList(basePath, items)
}

// ReviewItemPage renders one key with its candidates and the approve and
// deny forms.
func ReviewItemPage(basePath, csrfToken string, p *review.Pending) templ.Component {
	cands := make([]CandidateView, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		cands = append(cands, CandidateView{
			Index:      c.Index,
			Artist:     c.Track.ArtistName(),
			Title:      c.Track.TrackName(),
			Album:      c.Track.CollectionName(),
			ArtworkURL: c.Track.ArtworkURL(),
			PreviewURL: c.Track.PreviewURL(),
			Similarity: c.Similarity,
			Fields:     trackFields(c.Track),
		})
	}
	return reviewItem(basePath, csrfToken, p.Key, sortedFields(p.Record), p.Entries, cands)
}

// ErrorPage renders an error for browser requests.
func ErrorPage(basePath string, status int, message string) templ.Component {
	return errorPage(basePath, status, http.StatusText(status), message)
}

func sortedFields(m map[string]string) []Field {
	out := make([]Field, 0, len(m))
	for k, v := range m {
		out = append(out, Field{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// trackFields lists every candidate member except the media URLs, which
// the card shows inline.
func trackFields(t catalog.Track) []Field {
	out := make([]Field, 0, len(t))
	for k, v := range t {
		if k == catalog.FieldArtworkURL100 || k == catalog.FieldPreviewURL {
			continue
		}
		out = append(out, Field{Name: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
