package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sydlexius/stationsync/internal/api/middleware"
	"github.com/sydlexius/stationsync/internal/review"
	"github.com/sydlexius/stationsync/internal/store"
	"github.com/sydlexius/stationsync/web/templates"
)

// reviewStatus maps review errors onto HTTP status codes.
func reviewStatus(err error) int {
	switch {
	case errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, review.ErrInvalidCandidate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) reviewError(w http.ResponseWriter, req *http.Request, key string, err error) {
	status := reviewStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		r.logger.Error("review operation failed", "key", key, "error", err)
		msg = "internal error"
	}
	r.writeError(w, req, status, msg)
}

// handleReviewListPage renders every key waiting for a decision.
// GET /review
func (r *Router) handleReviewListPage(w http.ResponseWriter, req *http.Request) {
	pending, err := r.reviewService.Pending(req.Context())
	if err != nil {
		r.reviewError(w, req, "", err)
		return
	}
	renderTempl(w, req, http.StatusOK, templates.ReviewListPage(r.basePath, pending))
}

// handleReviewItemPage renders one key with its candidates.
// GET /review/{key}
func (r *Router) handleReviewItemPage(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	p, err := r.reviewService.Get(req.Context(), key)
	if err != nil {
		r.reviewError(w, req, key, err)
		return
	}
	token := middleware.CSRFToken(req.Context())
	renderTempl(w, req, http.StatusOK, templates.ReviewItemPage(r.basePath, token, p))
}

// handleReviewItemSubmit approves the posted candidate, or denies the key
// when action=deny, then returns to the queue.
// POST /review/{key}
func (r *Router) handleReviewItemSubmit(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	if err := req.ParseForm(); err != nil {
		r.writeError(w, req, http.StatusBadRequest, "invalid form")
		return
	}

	var err error
	if req.PostForm.Get("action") == "deny" {
		_, err = r.reviewService.Deny(req.Context(), key, reviewer(req))
	} else {
		idx, convErr := strconv.Atoi(req.PostForm.Get("candidate"))
		if convErr != nil {
			r.writeError(w, req, http.StatusBadRequest, "candidate must be an integer")
			return
		}
		_, err = r.reviewService.Approve(req.Context(), key, idx, reviewer(req))
	}
	if err != nil {
		r.reviewError(w, req, key, err)
		return
	}
	http.Redirect(w, req, r.basePath+"/review", http.StatusSeeOther)
}

// handleListQueue returns the merged pending reviews.
// GET /api/v1/queue
func (r *Router) handleListQueue(w http.ResponseWriter, req *http.Request) {
	pending, err := r.reviewService.Pending(req.Context())
	if err != nil {
		r.reviewError(w, req, "", err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleGetReview returns one pending review.
// GET /api/v1/review/{key}
func (r *Router) handleGetReview(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	p, err := r.reviewService.Get(req.Context(), key)
	if err != nil {
		r.reviewError(w, req, key, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type decisionResponse struct {
	Key   string      `json:"key"`
	Entry store.Entry `json:"entry"`
}

// handleApprove stores the chosen candidate.
// POST /api/v1/review/{key}/approve {"candidate": n}
func (r *Router) handleApprove(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	var body struct {
		Candidate *int `json:"candidate"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, req, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Candidate == nil {
		r.writeError(w, req, http.StatusBadRequest, "candidate is required")
		return
	}

	entry, err := r.reviewService.Approve(req.Context(), key, *body.Candidate, reviewer(req))
	if err != nil {
		r.reviewError(w, req, key, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Key: key, Entry: entry})
}

// handleDeny rejects every candidate for the key.
// POST /api/v1/review/{key}/deny
func (r *Router) handleDeny(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	entry, err := r.reviewService.Deny(req.Context(), key, reviewer(req))
	if err != nil {
		r.reviewError(w, req, key, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Key: key, Entry: entry})
}

// handlePrune drops queue entries whose key is already resolved.
// POST /api/v1/review/prune
func (r *Router) handlePrune(w http.ResponseWriter, req *http.Request) {
	n, err := r.reviewService.Prune(req.Context())
	if err != nil {
		r.reviewError(w, req, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
