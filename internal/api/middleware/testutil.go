package middleware

import "context"

// WithTestUser injects a reviewer into the context. This is intended for
// handler-level unit tests that call handler methods directly (bypassing the
// auth middleware).
func WithTestUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}
