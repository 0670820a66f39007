package api

import (
	"net/http"
	"os"
	"strings"
)

// MediaFiles serves downloaded artwork and previews read-only.
type MediaFiles struct {
	dir string
}

// NewMediaFiles serves files below dir. An empty dir serves nothing.
func NewMediaFiles(dir string) *MediaFiles {
	return &MediaFiles{dir: dir}
}

// Handler returns an HTTP handler for basePath+"/static/". Directory
// listings are refused.
func (m *MediaFiles) Handler(basePath string) http.Handler {
	if m.dir == "" {
		return http.NotFoundHandler()
	}
	fileServer := http.FileServer(noListing{http.Dir(m.dir)})
	stripped := http.StripPrefix(basePath+"/static/", fileServer)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		// Assets are replaced only by a new download under the same name,
		// which is rare; allow a day of caching.
		w.Header().Set("Cache-Control", "public, max-age=86400")
		stripped.ServeHTTP(w, r)
	})
}

// noListing hides directories so the file server cannot list them.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	if info.IsDir() {
		f.Close() //nolint:errcheck
		return nil, os.ErrNotExist
	}
	return f, nil
}
