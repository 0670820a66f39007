package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

const lookupOne = `{"resultCount":1,"results":[{"wrapperType":"track","artistName":"The Beatles","collectionName":"Help!","trackName":"Help!","trackId":1441133180,"isrc":"GBAYE0601498"}]}`

const searchTwo = `{"resultCount":2,"results":[
 {"artistName":"The Beatles","collectionName":"Help!","trackName":"Help!","trackId":123},
 {"artistName":"The Beatles","collectionName":"1","trackName":"Help!","trackId":456}]}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		switch r.URL.Path {
		case "/lookup":
			switch r.URL.Query().Get("isrc") {
			case "GBAYE0601498":
				w.Write([]byte(lookupOne))
			case "BROKEN":
				w.WriteHeader(http.StatusInternalServerError)
			case "LIMITED":
				w.Header().Set("Retry-After", "30")
				w.WriteHeader(http.StatusTooManyRequests)
			default:
				w.Write([]byte(`{"resultCount":0,"results":[]}`))
			}
		case "/search":
			if r.URL.Query().Get("media") != "music" {
				t.Errorf("media = %q, want music", r.URL.Query().Get("media"))
			}
			if r.URL.Query().Get("limit") != "5" {
				t.Errorf("limit = %q, want 5", r.URL.Query().Get("limit"))
			}
			if r.URL.Query().Get("term") == "garbage" {
				w.Write([]byte(`not json`))
				return
			}
			w.Write([]byte(searchTwo))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		LookupURL: srv.URL + "/lookup",
		SearchURL: srv.URL + "/search",
	}, testLogger())
}

func TestClientLookup(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	resp, err := c.Lookup(context.Background(), "GBAYE0601498")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if resp.ResultCount != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	tr := resp.Results[0]
	if tr.ArtistName() != "The Beatles" {
		t.Errorf("ArtistName = %q", tr.ArtistName())
	}
	if tr.TrackID() != 1441133180 {
		t.Errorf("TrackID = %d", tr.TrackID())
	}
}

func TestClientLookup_PreservesNumbers(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	resp, err := c.Lookup(context.Background(), "GBAYE0601498")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	out, err := json.Marshal(resp.Results[0][FieldTrackID])
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "1441133180" {
		t.Errorf("trackId re-encoded as %s", out)
	}
}

func TestClientLookup_ServerError(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	_, err := c.Lookup(context.Background(), "BROKEN")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if unavailable.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", unavailable.StatusCode)
	}
}

func TestClientLookup_RateLimited(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	_, err := c.Lookup(context.Background(), "LIMITED")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if unavailable.RetryAfter.Seconds() != 30 {
		t.Errorf("RetryAfter = %v, want 30s", unavailable.RetryAfter)
	}
}

func TestClientLookup_Unreachable(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(srv)
	srv.Close()

	_, err := c.Lookup(context.Background(), "GBAYE0601498")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClientSearch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	results, err := c.Search(context.Background(), "The Beatles Help!", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].TrackID() != 456 {
		t.Errorf("TrackID = %d, want 456", results[1].TrackID())
	}
}

func TestClientSearch_BadJSON(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := newTestClient(srv)

	if _, err := c.Search(context.Background(), "garbage", 5); err == nil {
		t.Error("expected decode error")
	}
}

func TestClientCanceledContext(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(Options{
		LookupURL:         srv.URL + "/lookup",
		SearchURL:         srv.URL + "/search",
		RequestsPerSecond: 0.001,
		Burst:             1,
	}, testLogger())

	// Drain the single burst token so the next call has to wait.
	if _, err := c.Lookup(context.Background(), "none"); err != nil {
		t.Fatalf("first Lookup: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Lookup(ctx, "none")
	var unavailable *ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrUnavailable from limiter, got %v", err)
	}
}
