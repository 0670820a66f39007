package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/filesystem"
	"github.com/sydlexius/stationsync/internal/store"
)

// ConfirmFunc decides whether to download assets for one artist/album.
type ConfirmFunc func(artist, album string) bool

// Summary counts the outcome of a batch of fetches.
type Summary struct {
	Tracks   int `json:"tracks"`
	Declined int `json:"declined"`
	Fetched  int `json:"fetched"`
	Kept     int `json:"kept"`
	Failed   int `json:"failed"`
}

func (s *Summary) add(r *Result) {
	s.Fetched += r.Fetched
	s.Kept += r.Kept
	s.Failed += len(r.Errors)
}

// IngestFile reads a catalog search results document ({"results": [...]})
// and fetches the assets of every result confirm accepts. A nil confirm
// accepts everything.
func (d *Downloader) IngestFile(ctx context.Context, path string, confirm ConfirmFunc) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	tracks, err := catalog.DecodeTracks(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	sum := &Summary{}
	for _, t := range tracks {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Tracks++
		if confirm != nil && !confirm(t.ArtistName(), t.CollectionName()) {
			sum.Declined++
			continue
		}
		sum.add(d.Fetch(ctx, t))
	}
	d.logger.Info("ingest finished", "path", path, "tracks", sum.Tracks, "fetched", sum.Fetched, "failed", sum.Failed)
	return sum, nil
}

// ManifestEntry records the local assets of one resolved track. The
// artwork and preview_mp3 members are empty when the asset is missing.
type ManifestEntry struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Artwork string `json:"artwork"`
	Preview string `json:"preview_mp3"`
}

// SyncCache fetches assets for every auto or approved cache entry and
// returns a manifest sorted by key.
func (d *Downloader) SyncCache(ctx context.Context, cache store.Cache) ([]ManifestEntry, *Summary, error) {
	keys := make([]string, 0, len(cache))
	for k, e := range cache {
		if e.Status == store.StatusAuto || e.Status == store.StatusApproved {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	sum := &Summary{}
	manifest := make([]ManifestEntry, 0, len(keys))
	for _, k := range keys {
		if ctx.Err() != nil {
			return manifest, sum, ctx.Err()
		}
		t := cache[k].Fields
		res := d.Fetch(ctx, t)
		sum.Tracks++
		sum.add(res)
		manifest = append(manifest, ManifestEntry{
			Key:     k,
			Title:   t.TrackName(),
			Artist:  t.ArtistName(),
			Album:   t.CollectionName(),
			Artwork: res.Artwork,
			Preview: res.Preview,
		})
	}
	d.logger.Info("cache media sync finished", "tracks", sum.Tracks, "fetched", sum.Fetched, "kept", sum.Kept, "failed", sum.Failed)
	return manifest, sum, nil
}

// WriteManifest stores a manifest as indented JSON.
func WriteManifest(path string, manifest []ManifestEntry) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return filesystem.WriteFileAtomic(path, append(data, '\n'), 0o644)
}
