// Package media downloads catalog artwork and preview clips into a local
// <artist>/<album>/ tree.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/filesystem"
)

const (
	// ArtworkFile is the artwork file name inside an album directory.
	ArtworkFile = "artwork.jpg"
	// DefaultPreviewFile is used when the preview URL has no usable base name.
	DefaultPreviewFile = "preview.mp3"

	unknownArtist = "Unknown Artist"
	unknownAlbum  = "Unknown Album"

	maxDownloadBytes = 50 << 20
)

// Sanitize keeps letters, digits, spaces, hyphens and underscores, then
// trims surrounding space.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// AlbumDir returns the relative directory for a track's assets.
func AlbumDir(t catalog.Track) string {
	artist := Sanitize(t.ArtistName())
	if artist == "" {
		artist = unknownArtist
	}
	album := Sanitize(t.CollectionName())
	if album == "" {
		album = unknownAlbum
	}
	return filepath.Join(artist, album)
}

// PreviewFileName returns the local file name for a preview URL.
func PreviewFileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultPreviewFile
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." || name == "" {
		return DefaultPreviewFile
	}
	return name
}

// Result describes what Fetch did for one track.
type Result struct {
	Dir     string  `json:"dir"`
	Artwork string  `json:"artwork,omitempty"`
	Preview string  `json:"preview,omitempty"`
	Fetched int     `json:"fetched"`
	Kept    int     `json:"kept"`
	Errors  []error `json:"-"`
}

// Err joins the per-asset failures, or returns nil.
func (r *Result) Err() error {
	return errors.Join(r.Errors...)
}

// Downloader stores track assets below a base directory.
type Downloader struct {
	dir         string
	artworkSize int
	client      *http.Client
	logger      *slog.Logger
}

// NewDownloader creates a downloader rooted at dir. A non-positive
// artworkSize uses DefaultArtworkSize.
func NewDownloader(dir string, artworkSize int, logger *slog.Logger) *Downloader {
	return NewDownloaderWithHTTPClient(dir, artworkSize, &http.Client{Timeout: 30 * time.Second}, logger)
}

// NewDownloaderWithHTTPClient creates a downloader with a custom HTTP client (for testing).
func NewDownloaderWithHTTPClient(dir string, artworkSize int, client *http.Client, logger *slog.Logger) *Downloader {
	if artworkSize <= 0 {
		artworkSize = DefaultArtworkSize
	}
	return &Downloader{
		dir:         dir,
		artworkSize: artworkSize,
		client:      client,
		logger:      logger.With(slog.String("component", "media")),
	}
}

// Dir returns the base directory.
func (d *Downloader) Dir() string { return d.dir }

// Fetch downloads the artwork and preview of t. Files that already exist
// are kept. A failure on one asset does not stop the other; failures are
// collected in the result.
func (d *Downloader) Fetch(ctx context.Context, t catalog.Track) *Result {
	rel := AlbumDir(t)
	res := &Result{Dir: rel}
	target := filepath.Join(d.dir, rel)

	if art := t.ArtworkURL(); art != "" {
		dest := filepath.Join(target, ArtworkFile)
		res.Artwork = filepath.Join(rel, ArtworkFile)
		fetched, err := d.fetchAsset(ctx, ArtworkURL(art, d.artworkSize), dest, func(b []byte) ([]byte, error) {
			return PrepareArtwork(b, d.artworkSize)
		})
		d.tally(res, "artwork", fetched, err)
	}

	if prev := t.PreviewURL(); prev != "" {
		name := PreviewFileName(prev)
		dest := filepath.Join(target, name)
		res.Preview = filepath.Join(rel, name)
		fetched, err := d.fetchAsset(ctx, prev, dest, nil)
		d.tally(res, "preview", fetched, err)
	}

	return res
}

// FetchURL downloads one arbitrary URL into the base directory and returns
// the path written. The file is named by filename, or by the last segment
// of the URL path when filename is empty. An existing file is replaced.
func (d *Downloader) FetchURL(ctx context.Context, rawURL, filename string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", 0, fmt.Errorf("%q is not an http(s) URL", rawURL)
	}
	if filename == "" {
		filename = path.Base(u.Path)
	}
	filename = filepath.Base(filename)
	if filename == "." || filename == "/" || filename == ".." || filename == string(filepath.Separator) {
		return "", 0, fmt.Errorf("cannot derive a file name from %s", rawURL)
	}

	data, err := d.download(ctx, rawURL)
	if err != nil {
		return "", 0, err
	}
	dest := filepath.Join(d.dir, filename)
	if err := filesystem.WriteFileAtomic(dest, data, 0o644); err != nil {
		return "", 0, err
	}
	d.logger.Info("media fetched", "url", rawURL, "path", dest, "size", humanize.Bytes(uint64(len(data))))
	return dest, len(data), nil
}

func (d *Downloader) tally(res *Result, kind string, fetched bool, err error) {
	switch {
	case err != nil:
		res.Errors = append(res.Errors, fmt.Errorf("%s: %w", kind, err))
		if kind == "artwork" {
			res.Artwork = ""
		} else {
			res.Preview = ""
		}
		d.logger.Warn("media download failed", "dir", res.Dir, "asset", kind, "error", err)
	case fetched:
		res.Fetched++
	default:
		res.Kept++
	}
}

// fetchAsset downloads rawURL to dest unless dest exists. transform, when
// set, may validate or rewrite the payload before it is written.
func (d *Downloader) fetchAsset(ctx context.Context, rawURL, dest string, transform func([]byte) ([]byte, error)) (bool, error) {
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", dest, err)
	}

	data, err := d.download(ctx, rawURL)
	if err != nil {
		return false, err
	}
	if transform != nil {
		if data, err = transform(data); err != nil {
			return false, err
		}
	}
	if err := filesystem.WriteFileAtomic(dest, data, 0o644); err != nil {
		return false, err
	}

	d.logger.Debug("media saved", "path", dest, "size", humanize.Bytes(uint64(len(data))))
	return true, nil
}

func (d *Downloader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "StationSync/1.0")

	resp, err := d.client.Do(req) //nolint:gosec // URL comes from catalog API results
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("fetching %s: body exceeds %s", rawURL, humanize.Bytes(maxDownloadBytes))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetching %s: empty body", rawURL)
	}
	return data, nil
}
