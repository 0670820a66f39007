// Package api serves the review pages and the JSON API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sydlexius/stationsync/internal/api/middleware"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/reconcile"
	"github.com/sydlexius/stationsync/internal/review"
	"github.com/sydlexius/stationsync/internal/store"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	ReviewService *review.Service
	Engine        *reconcile.Engine
	Cache         store.CacheStore
	History       *history.Service // nil when history is disabled
	Logger        *slog.Logger
	BasePath      string
	LibraryPath   string
	MediaDir      string
	Username      string
	PasswordHash  string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	reviewService *review.Service
	engine        *reconcile.Engine
	cache         store.CacheStore
	history       *history.Service
	logger        *slog.Logger
	basePath      string
	libraryPath   string
	media         *MediaFiles
	username      string
	passwordHash  string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		reviewService: deps.ReviewService,
		engine:        deps.Engine,
		cache:         deps.Cache,
		history:       deps.History,
		logger:        deps.Logger.With(slog.String("component", "api")),
		basePath:      normalizeBasePath(deps.BasePath),
		libraryPath:   deps.LibraryPath,
		media:         NewMediaFiles(deps.MediaDir),
		username:      deps.Username,
		passwordHash:  deps.PasswordHash,
	}
}

// normalizeBasePath turns "/", "" and "/x/" into "" and "/x".
func normalizeBasePath(bp string) string {
	bp = strings.TrimRight(strings.TrimSpace(bp), "/")
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return bp
}

// Handler returns the fully configured HTTP handler with middleware applied.
// ctx bounds background work started by requests, such as reconciliation
// runs and limiter cleanup.
func (r *Router) Handler(ctx context.Context) http.Handler {
	authMw := middleware.NewBasicAuth(r.username, r.passwordHash, middleware.NewAuthFailureLimiter(ctx)).Middleware
	csrfPath := r.basePath
	if csrfPath == "" {
		csrfPath = "/"
	}
	csrf := middleware.NewCSRF(csrfPath)
	page := func(fn http.HandlerFunc) http.Handler { return authMw(csrf.Middleware(fn)) }
	api := func(fn http.HandlerFunc) http.Handler { return authMw(fn) }

	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes (no auth)
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	// Review pages
	mux.Handle("GET "+bp+"/{$}", api(r.handleIndex))
	mux.Handle("GET "+bp+"/review", page(r.handleReviewListPage))
	mux.Handle("GET "+bp+"/review/{key}", page(r.handleReviewItemPage))
	mux.Handle("POST "+bp+"/review/{key}", page(r.handleReviewItemSubmit))
	mux.Handle("GET "+bp+"/static/", api(r.media.Handler(bp).ServeHTTP))

	// JSON API
	mux.Handle("GET "+bp+"/api/v1/queue", api(r.handleListQueue))
	mux.Handle("GET "+bp+"/api/v1/review/{key}", api(r.handleGetReview))
	mux.Handle("POST "+bp+"/api/v1/review/{key}/approve", api(r.handleApprove))
	mux.Handle("POST "+bp+"/api/v1/review/{key}/deny", api(r.handleDeny))
	mux.Handle("POST "+bp+"/api/v1/review/prune", api(r.handlePrune))
	mux.Handle("GET "+bp+"/api/v1/cache", api(r.handleListCache))
	mux.Handle("GET "+bp+"/api/v1/cache/{key}", api(r.handleGetCacheEntry))
	mux.Handle("POST "+bp+"/api/v1/reconcile", api(r.reconcileHandler(ctx)))
	mux.Handle("GET "+bp+"/api/v1/reconcile/status", api(r.handleReconcileStatus))
	mux.Handle("GET "+bp+"/api/v1/runs", api(r.handleListRuns))
	mux.Handle("GET "+bp+"/api/v1/decisions", api(r.handleListDecisions))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}
