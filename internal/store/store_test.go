package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sydlexius/stationsync/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func beatlesTrack() catalog.Track {
	return catalog.Track{
		"artistName":     "The Beatles",
		"collectionName": "Help!",
		"trackId":        json.Number("123"),
	}
}

func TestEntry_MarshalFlat(t *testing.T) {
	data, err := json.Marshal(AutoEntry(beatlesTrack()))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m["status"] != "auto" {
		t.Errorf("status = %v, want auto", m["status"])
	}
	if m["artistName"] != "The Beatles" {
		t.Errorf("artistName = %v", m["artistName"])
	}
	if m["trackId"] != float64(123) {
		t.Errorf("trackId = %v, want 123", m["trackId"])
	}
}

func TestEntry_DeniedHasOnlyStatus(t *testing.T) {
	data, err := json.Marshal(DeniedEntry())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"status":"denied"}` {
		t.Errorf("denied entry = %s", data)
	}
}

func TestEntry_UnmarshalSplitsStatus(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"artistName":"The Beatles","trackId":123,"status":"approved"}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Status != StatusApproved {
		t.Errorf("status = %q", e.Status)
	}
	if _, ok := e.Fields["status"]; ok {
		t.Error("status leaked into fields")
	}
	if id := e.Fields.TrackID(); id != 123 {
		t.Errorf("TrackID = %d, want 123", id)
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusAuto, StatusApproved, StatusDenied} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("pending").Valid() {
		t.Error("pending should not be valid")
	}
}

func TestFileCache_LoadMissing(t *testing.T) {
	s := NewFileCache(filepath.Join(t.TempDir(), "cache.json"), testLogger())
	c, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c == nil || len(c) != 0 {
		t.Errorf("Load on missing file = %v, want empty cache", c)
	}
}

func TestFileCache_LoadBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewFileCache(path, testLogger()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c) != 0 {
		t.Errorf("len = %d, want 0", len(c))
	}
}

func TestFileCache_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileCache(path, testLogger()).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFileCache_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileCache(path, testLogger())

	in := Cache{
		"the beatles:help!": AutoEntry(beatlesTrack()),
		"GBAYE0601498":      DeniedEntry(),
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "\n  \"GBAYE0601498\": {") {
		t.Errorf("expected two-space indented document, got:\n%s", raw)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	got := out["the beatles:help!"]
	if got.Status != StatusAuto || got.Fields.ArtistName() != "The Beatles" {
		t.Errorf("entry = %+v", got)
	}
	if out["GBAYE0601498"].Status != StatusDenied {
		t.Errorf("denied entry = %+v", out["GBAYE0601498"])
	}
}

func TestFileCache_NoHTMLEscaping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileCache(path, testLogger())
	tr := catalog.Track{"artistName": "Simon & Garfunkel"}
	if err := s.Save(Cache{"k": AutoEntry(tr)}); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "Simon & Garfunkel") {
		t.Errorf("ampersand was escaped:\n%s", raw)
	}
}

func TestFileCache_UpdateUnchangedSkipsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	s := NewFileCache(path, testLogger())

	err := s.Update(func(c Cache) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unchanged update wrote the file: %v", err)
	}
}

func TestFileCache_UpdateError(t *testing.T) {
	s := NewFileCache(filepath.Join(t.TempDir(), "cache.json"), testLogger())
	boom := errors.New("boom")
	if err := s.Update(func(c Cache) (bool, error) { return true, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestFileCache_ConcurrentUpdates(t *testing.T) {
	s := NewFileCache(filepath.Join(t.TempDir(), "cache.json"), testLogger())

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := "k" + string(rune('a'+i))
			if err := s.Update(func(c Cache) (bool, error) {
				c[key] = DeniedEntry()
				return true, nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != 20 {
		t.Errorf("len = %d, want 20 (lost update)", len(c))
	}
}

func TestFileCache_SeparateInstancesShareFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	a := NewFileCache(path, testLogger())
	b := NewFileCache(path, testLogger())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Update(func(c Cache) (bool, error) {
				c["a"+string(rune('0'+i))] = DeniedEntry()
				return true, nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = b.Update(func(c Cache) (bool, error) {
				c["b"+string(rune('0'+i))] = DeniedEntry()
				return true, nil
			})
		}()
	}
	wg.Wait()

	c, _ := a.Load()
	if len(c) != 20 {
		t.Errorf("len = %d, want 20", len(c))
	}
}

func TestFileQueue_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q := NewFileQueue(path, testLogger())

	entries, err := q.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("Load on missing file = %v, want empty", entries)
	}

	err = q.Append(QueueEntry{
		Key:     "the beatles:help!",
		Record:  map[string]string{"artist": "The Beatles", "title": "Help!"},
		Results: []catalog.Track{beatlesTrack(), {"trackId": json.Number("456")}},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := q.Append(QueueEntry{Key: "x:y"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err = q.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.Key != "the beatles:help!" || len(first.Results) != 2 {
		t.Errorf("first = %+v", first)
	}
	if first.ID == "" || first.QueuedAt.IsZero() {
		t.Errorf("id/queued_at not filled: %+v", first)
	}
	if entries[1].Results == nil || entries[1].Record == nil {
		t.Errorf("empty entry should carry empty containers: %+v", entries[1])
	}
}

func TestFileQueue_DocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q := NewFileQueue(path, testLogger())
	if err := q.Append(QueueEntry{Key: "k", Record: map[string]string{"title": "T"}}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc []map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("queue is not a JSON array: %v", err)
	}
	for _, field := range []string{"key", "record", "results"} {
		if _, ok := doc[0][field]; !ok {
			t.Errorf("missing %q member", field)
		}
	}
}

func TestFileQueue_UpdateRemoves(t *testing.T) {
	q := NewFileQueue(filepath.Join(t.TempDir(), "queue.json"), testLogger())
	for _, k := range []string{"a", "b", "a"} {
		if err := q.Append(QueueEntry{Key: k}); err != nil {
			t.Fatal(err)
		}
	}

	err := q.Update(func(entries []QueueEntry) ([]QueueEntry, bool, error) {
		kept := entries[:0]
		for _, e := range entries {
			if e.Key != "a" {
				kept = append(kept, e)
			}
		}
		return kept, true, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	entries, _ := q.Load()
	if len(entries) != 1 || entries[0].Key != "b" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestFileQueue_ConcurrentAppends(t *testing.T) {
	q := NewFileQueue(filepath.Join(t.TempDir(), "queue.json"), testLogger())

	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Append(QueueEntry{Key: "k"}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, _ := q.Load()
	if len(entries) != 25 {
		t.Errorf("len = %d, want 25", len(entries))
	}
	if len(QueuedKeys(entries)) != 1 {
		t.Errorf("QueuedKeys = %v", QueuedKeys(entries))
	}
}

func TestMemoryCache_IsolatesCopies(t *testing.T) {
	s := NewMemoryCache(Cache{"k": AutoEntry(beatlesTrack())})

	c, _ := s.Load()
	c["k"].Fields["artistName"] = "mutated"
	c["other"] = DeniedEntry()

	again, _ := s.Load()
	if again["k"].Fields.ArtistName() != "The Beatles" {
		t.Error("Load returned shared fields")
	}
	if _, ok := again["other"]; ok {
		t.Error("Load returned shared map")
	}
	if s.Saves() != 0 {
		t.Errorf("Saves = %d, want 0", s.Saves())
	}
}

func TestMemoryCache_Update(t *testing.T) {
	s := NewMemoryCache(nil)
	_ = s.Update(func(c Cache) (bool, error) {
		c["ignored"] = DeniedEntry()
		return false, nil
	})
	_ = s.Update(func(c Cache) (bool, error) {
		c["kept"] = DeniedEntry()
		return true, nil
	})

	c, _ := s.Load()
	if _, ok := c["ignored"]; ok {
		t.Error("unchanged update was applied")
	}
	if _, ok := c["kept"]; !ok {
		t.Error("changed update was dropped")
	}
	if s.Saves() != 1 {
		t.Errorf("Saves = %d, want 1", s.Saves())
	}
}

func TestMemoryQueue_Append(t *testing.T) {
	q := NewMemoryQueue()
	_ = q.Append(QueueEntry{Key: "a"})
	_ = q.Append(QueueEntry{Key: "b"})

	entries, _ := q.Load()
	if len(entries) != 2 {
		t.Fatalf("len = %d", len(entries))
	}
	if entries[0].ID == entries[1].ID {
		t.Errorf("ids not unique: %q", entries[0].ID)
	}
}
