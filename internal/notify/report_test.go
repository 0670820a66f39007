package notify

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestCompileMissing(t *testing.T) {
	tracks := []map[string]any{
		{"title": "Help!", "artwork": "a.jpg", "preview_mp3": "p.mp3"},
		{"title": "Yesterday", "artwork": "", "preview_mp3": "p.mp3"},
		{"name": "Something", "artwork": "a.jpg"},
		{"preview_mp3": nil},
		{"title": "", "name": "Fallback", "artwork": false, "preview_mp3": "x"},
	}
	art, prev := CompileMissing(tracks)

	wantArt := []string{"Yesterday", "<unknown>", "Fallback"}
	wantPrev := []string{"Something", "<unknown>"}
	if !reflect.DeepEqual(art, wantArt) {
		t.Errorf("missing artwork = %v, want %v", art, wantArt)
	}
	if !reflect.DeepEqual(prev, wantPrev) {
		t.Errorf("missing preview = %v, want %v", prev, wantPrev)
	}
}

func TestFormatBody(t *testing.T) {
	tests := []struct {
		name      string
		art, prev []string
		want      string
	}{
		{
			name: "both",
			art:  []string{"Help!"},
			prev: []string{"Yesterday", "Something"},
			want: "Tracks missing artwork:\n" +
				"- Help!\n" +
				"\n" +
				"Tracks missing preview MP3:\n" +
				"- Yesterday\n" +
				"- Something\n",
		},
		{
			name: "preview only",
			prev: []string{"Help!"},
			want: "Tracks missing preview MP3:\n" +
				"- Help!\n",
		},
		{
			name: "nothing missing",
			want: "All tracks have artwork and preview MP3.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatBody(tt.art, tt.prev); got != tt.want {
				t.Errorf("FormatBody =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestFormatEmail(t *testing.T) {
	got, err := FormatEmail("me@example.com", []string{"a@example.com", "b@example.com"}, []string{"Help!"}, nil)
	if err != nil {
		t.Fatalf("FormatEmail: %v", err)
	}
	got = strings.ReplaceAll(got, "\r\n", "\n")
	for _, want := range []string{
		"From: <me@example.com>\n",
		"To: <a@example.com>, <b@example.com>\n",
		"Subject: Missing track media\n",
		"Date: ",
		"Content-Type: text/plain; charset=UTF-8\n",
		"\n\nTracks missing artwork:\n- Help!\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q:\n%s", want, got)
		}
	}
}

func TestFormatEmail_BadAddress(t *testing.T) {
	if _, err := FormatEmail("not an address", []string{"a@example.com"}, nil, nil); err == nil {
		t.Error("expected an error for a malformed sender")
	}
	if _, err := FormatEmail("me@example.com", []string{"a@example.com", "@@"}, nil, nil); err == nil {
		t.Error("expected an error for a malformed recipient")
	}
}

func TestFormatEmail_NoAddresses(t *testing.T) {
	got, err := FormatEmail("", nil, nil, nil)
	if err != nil {
		t.Fatalf("FormatEmail: %v", err)
	}
	if strings.Contains(got, "From:") || strings.Contains(got, "To:") {
		t.Errorf("unexpected address headers:\n%s", got)
	}
	if !strings.Contains(got, allPresent) {
		t.Errorf("body missing all-clear line:\n%s", got)
	}
}

func TestLoadTracks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(`[{"title":"Help!","artwork":"x","preview_mp3":""}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	tracks, err := LoadTracks(path)
	if err != nil {
		t.Fatalf("LoadTracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0]["title"] != "Help!" {
		t.Errorf("tracks = %v", tracks)
	}

	if err := os.WriteFile(path, []byte(`{"not":"an array"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTracks(path); err == nil {
		t.Error("expected error for non-array document")
	}
	if _, err := LoadTracks(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
