package api

import (
	"net/http"

	"github.com/sydlexius/stationsync/internal/store"
)

// handleListCache returns the resolution cache, optionally filtered by
// ?status=auto|approved|denied.
// GET /api/v1/cache
func (r *Router) handleListCache(w http.ResponseWriter, req *http.Request) {
	cache, err := r.cache.Load()
	if err != nil {
		r.logger.Error("loading cache", "error", err)
		r.writeError(w, req, http.StatusInternalServerError, "internal error")
		return
	}

	status := store.Status(req.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusOK, cache)
		return
	}
	if !status.Valid() {
		r.writeError(w, req, http.StatusBadRequest, "status must be auto, approved or denied")
		return
	}
	filtered := make(store.Cache)
	for k, e := range cache {
		if e.Status == status {
			filtered[k] = e
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// handleGetCacheEntry returns the entry stored for one key.
// GET /api/v1/cache/{key}
func (r *Router) handleGetCacheEntry(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	cache, err := r.cache.Load()
	if err != nil {
		r.logger.Error("loading cache", "error", err)
		r.writeError(w, req, http.StatusInternalServerError, "internal error")
		return
	}
	entry, ok := cache[key]
	if !ok {
		r.writeError(w, req, http.StatusNotFound, "key is not resolved")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
