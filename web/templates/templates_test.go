package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/review"
)

func TestReviewListPage(t *testing.T) {
	var buf bytes.Buffer
	pending := []review.Pending{{
		Key:        "the beatles:help!",
		Record:     map[string]string{"Artist": "The Beatles", "Title": "Help!"},
		Candidates: []review.Candidate{{Index: 0}, {Index: 1}},
		QueuedAt:   time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}}
	if err := ReviewListPage("/ss", pending).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`href="/ss/review/the%20beatles:help%21"`,
		"<td>The Beatles</td>",
		"<td>2</td>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestReviewListPage_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ReviewListPage("", nil).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Nothing is waiting for review.") {
		t.Error("empty queue message missing")
	}
}

func TestReviewItemPage(t *testing.T) {
	var buf bytes.Buffer
	p := &review.Pending{
		Key:    "simon & garfunkel:the boxer",
		Record: map[string]string{"Artist": "Simon & Garfunkel", "Title": "The Boxer"},
		Candidates: []review.Candidate{{
			Index: 0,
			Track: catalog.Track{
				"artistName":    "Simon & Garfunkel",
				"trackName":     "The Boxer",
				"artworkUrl100": "https://img.example.com/100x100bb.jpg",
				"previewUrl":    "https://audio.example.com/p.m4a",
				"trackId":       42,
			},
			Similarity: 0.97,
		}},
		Entries: 2,
	}
	if err := ReviewItemPage("", "tok123", p).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Simon &amp; Garfunkel",
		`name="csrf_token" value="tok123"`,
		`name="candidate" value="0"`,
		`name="action" value="deny"`,
		`src="https://img.example.com/100x100bb.jpg"`,
		"trackId: 42",
		"similarity 97%",
		"Queued 2 times",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "previewUrl:") {
		t.Error("media URLs should not be listed as fields")
	}
}

func TestErrorPage(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorPage("", 404, "key is not waiting for review").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "404 Not Found") {
		t.Errorf("output = %s", buf.String())
	}
}

func TestReviewItemPage_EscapesKey(t *testing.T) {
	var buf bytes.Buffer
	p := &review.Pending{Key: `<script>alert(1)</script>`}
	if err := ReviewItemPage("/ss", "tok", p).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "<script>") {
		t.Error("key rendered unescaped")
	}
	for _, want := range []string{
		"<h1>&lt;script&gt;alert(1)&lt;/script&gt;</h1>",
		`action="/ss/review/%3Cscript%3Ealert%281%29%3C%2Fscript%3E"`,
		`<a href="/ss/review">Review queue</a>`,
		"No candidates were returned for this key.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestFormatSimilarity(t *testing.T) {
	tests := map[float64]string{0: "0%", 0.5: "50%", 0.876: "88%", 1: "100%"}
	for in, want := range tests {
		if got := formatSimilarity(in); got != want {
			t.Errorf("formatSimilarity(%v) = %q, want %q", in, got, want)
		}
	}
}
