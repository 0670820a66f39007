package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const userKey contextKey = "user"

// AnonymousUser is the reviewer name recorded when authentication is off.
const AnonymousUser = "anonymous"

// BasicAuth checks HTTP basic credentials against one username and a bcrypt
// password hash. An empty hash disables the check; requests then run as
// AnonymousUser.
type BasicAuth struct {
	username string
	hash     []byte
	realm    string
	limiter  *IPRateLimiter

	// verified caches the digest of the last credentials that passed bcrypt
	// so each request does not pay the bcrypt cost.
	mu       sync.Mutex
	verified [sha256.Size]byte
	ok       bool
}

// NewBasicAuth creates the middleware. limiter, when set, throttles clients
// that keep sending wrong credentials.
func NewBasicAuth(username, passwordHash string, limiter *IPRateLimiter) *BasicAuth {
	a := &BasicAuth{
		username: username,
		realm:    "StationSync",
		limiter:  limiter,
	}
	if passwordHash != "" {
		a.hash = []byte(passwordHash)
	}
	return a
}

// Enabled reports whether credentials are required.
func (a *BasicAuth) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

// Middleware returns the handler that enforces the credentials.
func (a *BasicAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, AnonymousUser)))
			return
		}

		ip := clientIP(r)
		if a.limiter != nil && a.limiter.Blocked(ip) {
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !a.check(user, pass) {
			if ok && a.limiter != nil {
				a.limiter.Record(ip)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func (a *BasicAuth) check(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) != 1 {
		return false
	}
	digest := sha256.Sum256([]byte(user + "\x00" + pass))

	a.mu.Lock()
	cached := a.ok && subtle.ConstantTimeCompare(digest[:], a.verified[:]) == 1
	a.mu.Unlock()
	if cached {
		return true
	}

	if bcrypt.CompareHashAndPassword(a.hash, []byte(pass)) != nil {
		return false
	}
	a.mu.Lock()
	a.verified, a.ok = digest, true
	a.mu.Unlock()
	return true
}

// UserFromContext returns the authenticated reviewer, or "".
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}
