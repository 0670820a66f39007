package library

import "strings"

// DeriveKey returns the identity key for a record. A non-blank ISRC wins and
// is uppercased; otherwise the key is "artist:title", lowercased. Every caller
// that reads or writes the resolution cache must use this function so keys
// stay stable across runs.
func DeriveKey(r Record) string {
	if isrc := strings.TrimSpace(r.ISRC); isrc != "" {
		return strings.ToUpper(isrc)
	}
	artist := strings.ToLower(strings.TrimSpace(r.Artist))
	title := strings.ToLower(strings.TrimSpace(r.Title))
	return artist + ":" + title
}
