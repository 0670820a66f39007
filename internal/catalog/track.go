package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Track is a single catalog record exactly as the catalog returned it. Field
// names follow the iTunes Search API (artistName, trackName, trackId, ...).
// Numbers are kept as json.Number so IDs survive a decode/encode cycle
// unchanged.
type Track map[string]any

// Common iTunes result fields.
const (
	FieldArtistName     = "artistName"
	FieldCollectionName = "collectionName"
	FieldTrackName      = "trackName"
	FieldTrackID        = "trackId"
	FieldArtworkURL100  = "artworkUrl100"
	FieldPreviewURL     = "previewUrl"
	FieldISRC           = "isrc"
)

// String returns a string field, or "" if absent or not a string.
func (t Track) String(field string) string {
	if s, ok := t[field].(string); ok {
		return s
	}
	return ""
}

// ArtistName returns the track's artist.
func (t Track) ArtistName() string { return t.String(FieldArtistName) }

// CollectionName returns the album name.
func (t Track) CollectionName() string { return t.String(FieldCollectionName) }

// TrackName returns the track title.
func (t Track) TrackName() string { return t.String(FieldTrackName) }

// ArtworkURL returns the 100px artwork URL.
func (t Track) ArtworkURL() string { return t.String(FieldArtworkURL100) }

// PreviewURL returns the audio preview URL.
func (t Track) PreviewURL() string { return t.String(FieldPreviewURL) }

// TrackID returns the numeric catalog track ID, or 0 when missing.
func (t Track) TrackID() int64 {
	switch v := t[FieldTrackID].(type) {
	case json.Number:
		n, _ := v.Int64()
		return n
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Clone returns a shallow copy of the track.
func (t Track) Clone() Track {
	out := make(Track, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// DecodeTracks decodes catalog records, preserving numbers. It accepts a
// bare JSON array or a saved search response ({"results": [...]}).
func DecodeTracks(data []byte) ([]Track, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp searchResponse
		if err := decodeJSON(trimmed, &resp); err != nil {
			return nil, err
		}
		if resp.Results == nil {
			return []Track{}, nil
		}
		return resp.Results, nil
	}

	var tracks []Track
	if err := decodeJSON(trimmed, &tracks); err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []Track{}
	}
	return tracks, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding catalog json: %w", err)
	}
	return nil
}
