package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/database"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/reconcile"
	"github.com/sydlexius/stationsync/internal/review"
	"github.com/sydlexius/stationsync/internal/store"
)

const beatlesKey = "the beatles:help!"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubResolver struct {
	search map[string][]catalog.Track
}

func (s stubResolver) LookupByIdentifier(context.Context, string) (catalog.Track, bool) {
	return nil, false
}

func (s stubResolver) Search(_ context.Context, artist, title string) []catalog.Track {
	return s.search[artist+" "+title]
}

type fixture struct {
	handler http.Handler
	cache   *store.MemoryCache
	queue   *store.MemoryQueue
	history *history.Service
	engine  *reconcile.Engine
	library string
	media   string
}

type fixtureOpts struct {
	basePath     string
	passwordHash string
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	logger := testLogger()

	db, err := database.OpenAndMigrate(database.MemoryPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	hist := history.NewService(db)

	cache := store.NewMemoryCache(store.Cache{
		"abba:sos": store.AutoEntry(catalog.Track{"artistName": "ABBA", "trackName": "SOS", "trackId": 1}),
	})
	queue := store.NewMemoryQueue()
	if err := queue.Append(store.QueueEntry{
		Key:    beatlesKey,
		Record: map[string]string{"Artist": "The Beatles", "Title": "Help!"},
		Results: []catalog.Track{
			{"artistName": "The Beatles", "trackName": "Help!", "collectionName": "Help!", "trackId": 123},
			{"artistName": "The Beatles", "trackName": "Help!", "collectionName": "1", "trackId": 456},
		},
	}); err != nil {
		t.Fatal(err)
	}

	reviewSvc := review.NewService(cache, queue, logger)
	reviewSvc.SetHistory(hist)

	engine := reconcile.NewEngine(stubResolver{search: map[string][]catalog.Track{
		"Queen Bohemian Rhapsody": {{"artistName": "Queen", "trackName": "Bohemian Rhapsody", "trackId": 9}},
	}}, cache, queue, 2, logger)
	engine.SetHistory(hist)

	dir := t.TempDir()
	libraryPath := filepath.Join(dir, "library.csv")
	if err := os.WriteFile(libraryPath, []byte("Artist,Title\nQueen,Bohemian Rhapsody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mediaDir := filepath.Join(dir, "media")
	if err := os.MkdirAll(filepath.Join(mediaDir, "ABBA", "Arrival"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mediaDir, "ABBA", "Arrival", "artwork.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRouter(RouterDeps{
		ReviewService: reviewSvc,
		Engine:        engine,
		Cache:         cache,
		History:       hist,
		Logger:        logger,
		BasePath:      opts.basePath,
		LibraryPath:   libraryPath,
		MediaDir:      mediaDir,
		Username:      "admin",
		PasswordHash:  opts.passwordHash,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &fixture{
		handler: r.Handler(ctx),
		cache:   cache,
		queue:   queue,
		history: hist,
		engine:  engine,
		library: libraryPath,
		media:   mediaDir,
	}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v; body: %s", err, w.Body.String())
	}
}

func TestNormalizeBasePath(t *testing.T) {
	tests := map[string]string{"": "", "/": "", "/ss/": "/ss", "ss": "/ss", " /a/b ": "/a/b"}
	for in, want := range tests {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fixtureOpts{passwordHash: mustHash(t, "pw")})
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	jsonBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestIndexRedirects(t *testing.T) {
	f := newFixture(t, fixtureOpts{basePath: "/ss/"})
	w := f.do(httptest.NewRequest(http.MethodGet, "/ss/", nil))
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/ss/review" {
		t.Errorf("got %d -> %q", w.Code, w.Header().Get("Location"))
	}
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, fixtureOpts{passwordHash: mustHash(t, "pw")})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without credentials = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.SetBasicAuth("admin", "pw")
	if w := f.do(req); w.Code != http.StatusOK {
		t.Fatalf("status with credentials = %d, want 200", w.Code)
	}
}

func TestStaticServesMediaWithoutListing(t *testing.T) {
	f := newFixture(t, fixtureOpts{basePath: "/ss"})

	w := f.do(httptest.NewRequest(http.MethodGet, "/ss/static/ABBA/Arrival/artwork.jpg", nil))
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Errorf("file: %d %q", w.Code, w.Body.String())
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/ss/static/ABBA/", nil)); w.Code != http.StatusNotFound {
		t.Errorf("directory listing status = %d, want 404", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/ss/static/ABBA", nil)); w.Code == http.StatusOK {
		t.Errorf("directory without slash should not be served, got %d", w.Code)
	}
}

func TestStaticDisabledWithoutMediaDir(t *testing.T) {
	h := NewMediaFiles("").Handler("")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/x.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestReconcileEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/reconcile/status", nil))
	var idle map[string]string
	jsonBody(t, w, &idle)
	if idle["status"] != "idle" {
		t.Errorf("status before any run = %v", idle)
	}

	w = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d; body %s", w.Code, w.Body.String())
	}
	var started reconcile.RunResult
	jsonBody(t, w, &started)
	if started.ID == "" || started.Source != f.library {
		t.Errorf("started = %+v", started)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st := f.engine.Status()
		if st != nil && st.Status != reconcile.StatusRunning {
			if st.Auto != 1 {
				t.Errorf("run = %+v, want 1 auto", st)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("run did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cache, _ := f.cache.Load()
	if cache["queen:bohemian rhapsody"].Status != store.StatusAuto {
		t.Errorf("cache = %v", cache)
	}

	// The run is recorded after its status flips to completed.
	var runs []history.Run
	for {
		w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5", nil))
		runs = nil
		jsonBody(t, w, &runs)
		if len(runs) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(runs) != 1 || runs[0].Auto != 1 {
		t.Errorf("runs = %+v", runs)
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=x", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestReconcileMissingLibraryFile(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if err := os.Remove(f.library); err != nil {
		t.Fatal(err)
	}
	w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cache", nil))
	var all map[string]map[string]any
	jsonBody(t, w, &all)
	if all["abba:sos"]["status"] != "auto" || all["abba:sos"]["artistName"] != "ABBA" {
		t.Errorf("cache = %v", all)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cache?status=denied", nil))
	var denied map[string]any
	jsonBody(t, w, &denied)
	if len(denied) != 0 {
		t.Errorf("denied = %v", denied)
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cache?status=bogus", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cache/"+url.PathEscape("abba:sos"), nil)); w.Code != http.StatusOK {
		t.Errorf("entry status = %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/cache/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d", w.Code)
	}
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func containsAll(t *testing.T, body string, want ...string) {
	t.Helper()
	for _, s := range want {
		if !strings.Contains(body, s) {
			t.Errorf("body missing %q", s)
		}
	}
}
