// Package notify builds and mails the missing-media report for a media
// manifest.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wneessen/go-mail"
)

// Subject is the subject line of every report.
const Subject = "Missing track media"

const allPresent = "All tracks have artwork and preview MP3."

// LoadTracks reads a JSON array of track objects, such as the manifest
// written by media sync.
func LoadTracks(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var tracks []map[string]any
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return tracks, nil
}

// CompileMissing returns the titles of tracks without an artwork value and
// of tracks without a preview_mp3 value, in input order. A track is titled
// by its title member, then its name member, then "<unknown>".
func CompileMissing(tracks []map[string]any) (missingArtwork, missingPreview []string) {
	for _, t := range tracks {
		title := "<unknown>"
		if s, ok := t["title"].(string); ok && s != "" {
			title = s
		} else if s, ok := t["name"].(string); ok && s != "" {
			title = s
		}
		if !present(t["artwork"]) {
			missingArtwork = append(missingArtwork, title)
		}
		if !present(t["preview_mp3"]) {
			missingPreview = append(missingPreview, title)
		}
	}
	return missingArtwork, missingPreview
}

// present reports whether a decoded JSON value is non-empty.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case json.Number:
		return x != "" && x != "0"
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// FormatBody renders the plain-text report body: the titles missing
// artwork, then those missing a preview, or a single all-clear line.
func FormatBody(missingArtwork, missingPreview []string) string {
	var lines []string
	if len(missingArtwork) > 0 {
		lines = append(lines, "Tracks missing artwork:")
		for _, title := range missingArtwork {
			lines = append(lines, "- "+title)
		}
		lines = append(lines, "")
	}
	if len(missingPreview) > 0 {
		lines = append(lines, "Tracks missing preview MP3:")
		for _, title := range missingPreview {
			lines = append(lines, "- "+title)
		}
		lines = append(lines, "")
	}
	if len(lines) == 0 {
		lines = append(lines, allPresent)
	}
	return strings.Join(lines, "\n")
}

// NewMessage builds the report message. Empty from or to leave the header
// out so the report can still be previewed without mail settings.
func NewMessage(from string, to []string, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if from != "" {
		if err := msg.From(from); err != nil {
			return nil, fmt.Errorf("sender %q: %w", from, err)
		}
	}
	if len(to) > 0 {
		if err := msg.To(to...); err != nil {
			return nil, fmt.Errorf("recipients: %w", err)
		}
	}
	msg.Subject(Subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// FormatEmail renders the complete report message, headers and body, as it
// would go over the wire.
func FormatEmail(from string, to []string, missingArtwork, missingPreview []string) (string, error) {
	msg, err := NewMessage(from, to, FormatBody(missingArtwork, missingPreview))
	if err != nil {
		return "", err
	}
	return renderMessage(msg)
}

func renderMessage(msg *mail.Msg) (string, error) {
	var b bytes.Buffer
	if _, err := msg.WriteTo(&b); err != nil {
		return "", fmt.Errorf("rendering message: %w", err)
	}
	return b.String(), nil
}
