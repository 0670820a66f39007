package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/reconcile"
)

// reconcileHandler starts a run over the configured library file. The run
// outlives the request and is bound to ctx instead.
// POST /api/v1/reconcile
func (r *Router) reconcileHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.engine == nil {
			r.writeError(w, req, http.StatusServiceUnavailable, "reconciliation not configured")
			return
		}
		if r.libraryPath == "" {
			r.writeError(w, req, http.StatusServiceUnavailable, "no library file configured")
			return
		}

		result, err := r.engine.StartFile(ctx, r.libraryPath)
		switch {
		case errors.Is(err, reconcile.ErrRunInProgress):
			r.writeError(w, req, http.StatusConflict, err.Error())
			return
		case err != nil:
			r.logger.Error("starting reconciliation", "path", r.libraryPath, "error", err)
			r.writeError(w, req, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, result)
	}
}

// handleReconcileStatus returns the current or most recent run.
// GET /api/v1/reconcile/status
func (r *Router) handleReconcileStatus(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		r.writeError(w, req, http.StatusServiceUnavailable, "reconciliation not configured")
		return
	}
	status := r.engine.Status()
	if status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleListRuns returns recorded runs, newest first.
// GET /api/v1/runs?limit=n
func (r *Router) handleListRuns(w http.ResponseWriter, req *http.Request) {
	if r.history == nil {
		r.writeError(w, req, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	limit := 0
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			r.writeError(w, req, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := r.history.ListRuns(req.Context(), limit)
	if err != nil {
		r.logger.Error("listing runs", "error", err)
		r.writeError(w, req, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleListDecisions returns review decisions, optionally for one key.
// GET /api/v1/decisions?key=k
func (r *Router) handleListDecisions(w http.ResponseWriter, req *http.Request) {
	if r.history == nil {
		r.writeError(w, req, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	decisions, err := r.history.ListDecisions(req.Context(), req.URL.Query().Get("key"))
	if err != nil {
		r.logger.Error("listing decisions", "error", err)
		r.writeError(w, req, http.StatusInternalServerError, "internal error")
		return
	}
	if decisions == nil {
		decisions = []history.Decision{}
	}
	writeJSON(w, http.StatusOK, decisions)
}
