package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
)

const csrfTokenHeader = "X-CSRF-Token" //nolint:gosec // G101: not a credential, this is an HTTP header name
const csrfCookieName = "csrf_token"
const csrfFormField = "csrf_token"

const csrfKey contextKey = "csrf"

// CSRF protects the review forms. Browsers resend basic credentials on
// every request, so a form post from another site would otherwise be
// accepted.
type CSRF struct {
	mu     sync.RWMutex
	tokens map[string]bool
	path   string
}

// NewCSRF creates a CSRF middleware instance whose cookie is scoped to
// cookiePath.
func NewCSRF(cookiePath string) *CSRF {
	if cookiePath == "" {
		cookiePath = "/"
	}
	return &CSRF{tokens: make(map[string]bool), path: cookiePath}
}

// Middleware issues a token on safe methods and validates it on the rest.
// The current token is available to handlers through CSRFToken.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Safe methods do not require CSRF validation
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			token := c.ensureToken(w, r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey, token)))
			return
		}

		token := r.Header.Get(csrfTokenHeader)
		if token == "" {
			token = r.FormValue(csrfFormField)
		}
		cookie, err := r.Cookie(csrfCookieName)
		if token == "" || !c.valid(token) || err != nil || cookie.Value != token {
			http.Error(w, "invalid CSRF token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfKey, token)))
	})
}

// CSRFToken returns the token issued for the request, or "".
func CSRFToken(ctx context.Context) string {
	if v, ok := ctx.Value(csrfKey).(string); ok {
		return v
	}
	return ""
}

func (c *CSRF) ensureToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" && c.valid(cookie.Value) {
		return cookie.Value
	}

	token := c.generate()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     c.path,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return token
}

func (c *CSRF) generate() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	token := hex.EncodeToString(b)

	c.mu.Lock()
	c.tokens[token] = true
	c.mu.Unlock()

	return token
}

func (c *CSRF) valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[token]
}
