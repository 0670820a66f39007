package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewIPRateLimiter(ctx, time.Hour, 3)

	if rl.Blocked("198.51.100.1") {
		t.Fatal("unseen IP should not be blocked")
	}
	for range 2 {
		rl.Record("198.51.100.1")
	}
	if rl.Blocked("198.51.100.1") {
		t.Fatal("IP with budget left should not be blocked")
	}
	rl.Record("198.51.100.1")
	if !rl.Blocked("198.51.100.1") {
		t.Error("IP should be blocked once the budget is spent")
	}
	if rl.Blocked("198.51.100.2") {
		t.Error("other IPs are independent")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:4000", "192.0.2.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-Ip": "203.0.113.6"}, "10.0.0.1:1", "203.0.113.6"},
		{"no port", nil, "192.0.2.7", "192.0.2.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
