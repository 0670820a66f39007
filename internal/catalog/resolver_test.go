package catalog

import (
	"context"
	"errors"
	"testing"
)

type fakeCatalog struct {
	lookup      *LookupResponse
	lookupErr   error
	search      []Track
	searchErr   error
	lastTerm    string
	lastLimit   int
	lookupCalls int
	searchCalls int
}

func (f *fakeCatalog) Lookup(_ context.Context, _ string) (*LookupResponse, error) {
	f.lookupCalls++
	return f.lookup, f.lookupErr
}

func (f *fakeCatalog) Search(_ context.Context, term string, limit int) ([]Track, error) {
	f.searchCalls++
	f.lastTerm = term
	f.lastLimit = limit
	return f.search, f.searchErr
}

func TestLookupByIdentifier_ExactlyOne(t *testing.T) {
	fc := &fakeCatalog{lookup: &LookupResponse{ResultCount: 1, Results: []Track{{"trackId": 1}}}}
	r := NewResolver(fc, 0, testLogger())

	tr, ok := r.LookupByIdentifier(context.Background(), "ISRC1")
	if !ok {
		t.Fatal("expected match")
	}
	if tr.TrackID() != 1 {
		t.Errorf("TrackID = %d", tr.TrackID())
	}
}

func TestLookupByIdentifier_NotUnique(t *testing.T) {
	tests := []struct {
		name string
		resp *LookupResponse
	}{
		{"zero", &LookupResponse{ResultCount: 0}},
		{"two", &LookupResponse{ResultCount: 2, Results: []Track{{"trackId": 1}, {"trackId": 2}}}},
		{"count without results", &LookupResponse{ResultCount: 1}},
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeCatalog{lookup: tt.resp}, 0, testLogger())
			if _, ok := r.LookupByIdentifier(context.Background(), "ISRC1"); ok {
				t.Error("expected no match")
			}
		})
	}
}

func TestLookupByIdentifier_ErrorIsNoMatch(t *testing.T) {
	fc := &fakeCatalog{lookupErr: &ErrUnavailable{Endpoint: "lookup", Cause: errors.New("boom")}}
	r := NewResolver(fc, 0, testLogger())
	if _, ok := r.LookupByIdentifier(context.Background(), "ISRC1"); ok {
		t.Error("expected no match on error")
	}
}

func TestLookupByIdentifier_BlankSkipsCall(t *testing.T) {
	fc := &fakeCatalog{}
	r := NewResolver(fc, 0, testLogger())
	if _, ok := r.LookupByIdentifier(context.Background(), "  "); ok {
		t.Error("expected no match")
	}
	if fc.lookupCalls != 0 {
		t.Errorf("lookup called %d times", fc.lookupCalls)
	}
}

func TestResolverSearch(t *testing.T) {
	fc := &fakeCatalog{search: []Track{{"trackId": 1}, {"trackId": 2}}}
	r := NewResolver(fc, 0, testLogger())

	got := r.Search(context.Background(), "The Beatles", "Help!")
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if fc.lastTerm != "The Beatles Help!" {
		t.Errorf("term = %q", fc.lastTerm)
	}
	if fc.lastLimit != DefaultSearchLimit {
		t.Errorf("limit = %d, want %d", fc.lastLimit, DefaultSearchLimit)
	}
}

func TestResolverSearch_ErrorIsEmpty(t *testing.T) {
	fc := &fakeCatalog{searchErr: errors.New("timeout")}
	r := NewResolver(fc, 3, testLogger())

	got := r.Search(context.Background(), "a", "b")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	if fc.lastLimit != 3 {
		t.Errorf("limit = %d, want 3", fc.lastLimit)
	}
}
