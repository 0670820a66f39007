package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/sydlexius/stationsync/internal/api/middleware"
	"github.com/sydlexius/stationsync/internal/version"
	"github.com/sydlexius/stationsync/web/templates"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, r.basePath+"/review", http.StatusSeeOther)
}

// reviewer names the person behind a decision.
func reviewer(req *http.Request) string {
	if u := middleware.UserFromContext(req.Context()); u != "" {
		return u
	}
	return middleware.AnonymousUser
}

func renderTempl(w http.ResponseWriter, r *http.Request, status int, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := component.Render(r.Context(), w); err != nil {
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// writeError sends an error response. Browser page requests get an HTML
// error page; API requests get JSON.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, status int, message string) {
	if wantsHTML(req) {
		renderTempl(w, req, status, templates.ErrorPage(r.basePath, status, message))
		return
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func wantsHTML(req *http.Request) bool {
	return !strings.Contains(req.URL.Path, "/api/") && strings.Contains(req.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
