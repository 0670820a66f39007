package library

import "strings"

// Canonical column names for a station library row.
const (
	ColumnISRC   = "ISRC"
	ColumnArtist = "Artist"
	ColumnTitle  = "Title"
)

// Record is one row from a station library spreadsheet. ISRC, Artist, and
// Title are always set (possibly empty); Fields keeps every column of the
// original row so reviewers can inspect it.
type Record struct {
	ISRC   string
	Artist string
	Title  string
	Fields map[string]string
}

// Map returns the original row as a column -> value mapping. Records built
// in code without Fields get the three canonical columns.
func (r Record) Map() map[string]string {
	if len(r.Fields) == 0 {
		return map[string]string{
			ColumnISRC:   r.ISRC,
			ColumnArtist: r.Artist,
			ColumnTitle:  r.Title,
		}
	}
	m := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		m[k] = v
	}
	return m
}

// RecordFromMap rebuilds a Record from a stored row mapping. Column names are
// matched case-insensitively through the same aliases the loader uses, so a
// record that went through the review queue derives the same key it had when
// it was first loaded.
func RecordFromMap(m map[string]string) Record {
	r := Record{Fields: make(map[string]string, len(m))}
	headers := make([]string, 0, len(m))
	for col, val := range m {
		r.Fields[col] = val
		headers = append(headers, col)
	}
	cols := resolveColumns(headers)
	r.ISRC = cols.value(m, ColumnISRC)
	r.Artist = cols.value(m, ColumnArtist)
	r.Title = cols.value(m, ColumnTitle)
	return r
}

// columnAliases lists the accepted header names for each canonical column,
// highest priority first. The canonical name itself always comes first.
var columnAliases = map[string][]string{
	ColumnISRC:   {"isrc"},
	ColumnArtist: {"artist", "artist name", "artist_name", "performer"},
	ColumnTitle:  {"title", "track title", "track_title", "track", "name"},
}

// canonicalColumn returns the canonical column for a header and the alias
// rank within it (0 is the canonical name). ok is false for other headers.
func canonicalColumn(header string) (col string, rank int, ok bool) {
	h := strings.ToLower(strings.TrimSpace(header))
	for col, aliases := range columnAliases {
		for i, a := range aliases {
			if a == h {
				return col, i, true
			}
		}
	}
	return "", 0, false
}

// resolveColumns picks, for each canonical column, the header that supplies
// it. The lowest alias rank wins; headers of equal rank (such as "Title" and
// "title") fall back to the lexically smallest name, so the choice never
// depends on map or column order.
func resolveColumns(headers []string) columnMap {
	type pick struct {
		header string
		rank   int
	}
	best := make(map[string]pick, len(columnAliases))
	for _, h := range headers {
		col, rank, ok := canonicalColumn(h)
		if !ok {
			continue
		}
		cur, seen := best[col]
		if !seen || rank < cur.rank || (rank == cur.rank && h < cur.header) {
			best[col] = pick{header: h, rank: rank}
		}
	}
	cols := make(columnMap, len(best))
	for col, p := range best {
		cols[col] = p.header
	}
	return cols
}

// columnMap maps a canonical column to the header that supplies it.
type columnMap map[string]string

// value returns the row's value for a canonical column, or "" when the row
// has no header for it.
func (c columnMap) value(row map[string]string, col string) string {
	h, ok := c[col]
	if !ok {
		return ""
	}
	return row[h]
}
