package templates

import (
	"net/url"
	"strconv"
	"time"
)

// itemPath is the review page for one key.
func itemPath(basePath, key string) string {
	return basePath + "/review/" + url.PathEscape(key)
}

// formatTime renders a queue timestamp, or a dash when unknown.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// formatSimilarity renders a 0..1 score as a percentage.
func formatSimilarity(s float64) string {
	return strconv.Itoa(int(s*100+0.5)) + "%"
}
