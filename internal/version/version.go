// Package version holds build metadata set with -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/sydlexius/stationsync/internal/version.Version=v1.2.3 -X github.com/sydlexius/stationsync/internal/version.Commit=abc123"
var (
	Version = "dev"
	Commit  = "unknown"
)
