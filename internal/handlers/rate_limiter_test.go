package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

func mustTrustedProxies(t *testing.T, entries ...string) []netip.Prefix {
	t.Helper()
	prefixes, err := ParseTrustedProxies(entries)
	if err != nil {
		t.Fatalf("parse trusted proxies: %v", err)
	}
	return prefixes
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		want    string
	}{
		{"no proxies configured ignores header", nil, "10.0.0.1:1234", "1.2.3.4", "10.0.0.1"},
		{"untrusted peer ignores header", []string{"10.0.0.0/8"}, "203.0.113.9:1234", "1.2.3.4", "203.0.113.9"},
		{"trusted peer uses forwarded client", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "1.2.3.4", "1.2.3.4"},
		{"spoofed left hop is skipped", []string{"10.0.0.1"}, "10.0.0.1:1234", "6.6.6.6, 1.2.3.4", "1.2.3.4"},
		{"trusted hops are walked from the right", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "1.2.3.4, 10.0.0.7", "1.2.3.4"},
		{"only trusted hops falls back to peer", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "10.0.0.7", "10.0.0.1"},
		{"garbage hop falls back to peer", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "not-an-ip", "10.0.0.1"},
		{"trusted peer without header", []string{"10.0.0.0/8"}, "10.0.0.1:1234", "", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handler{TrustedProxies: mustTrustedProxies(t, tt.trusted...)}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := h.clientIP(req); got != tt.want {
				t.Fatalf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	for _, entry := range []string{"10.0.0.0/33", "proxy.local"} {
		if _, err := ParseTrustedProxies([]string{entry}); err == nil {
			t.Fatalf("%q: expected error", entry)
		}
	}
}

func TestCheckOrigin_EmptyAllowsAll(t *testing.T) {
	h := &Handler{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example")
	if !h.checkOrigin(req) {
		t.Fatalf("checkOrigin should allow when no origins are configured")
	}
}

func TestCheckOrigin_ListAllowAndDeny(t *testing.T) {
	h := &Handler{AllowedOrigins: []string{"https://a.example", "https://b.example"}}
	allowReq := httptest.NewRequest(http.MethodGet, "/", nil)
	allowReq.Header.Set("Origin", "https://b.example")
	denyReq := httptest.NewRequest(http.MethodGet, "/", nil)
	denyReq.Header.Set("Origin", "https://c.example")

	if !h.checkOrigin(allowReq) {
		t.Fatalf("expected allow for https://b.example")
	}
	if h.checkOrigin(denyReq) {
		t.Fatalf("expected deny for https://c.example")
	}
}

func TestRateLimiter_AllowBlocksAndResets(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	ip := "1.2.3.4"
	if !rl.Allow(ip) || !rl.Allow(ip) {
		t.Fatalf("first two attempts should be allowed")
	}
	if rl.Allow(ip) {
		t.Fatalf("third attempt should be blocked")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("other keys should not be affected")
	}

	time.Sleep(120 * time.Millisecond) // wait for cleanup to run
	if !rl.Allow(ip) {
		t.Fatalf("after window cleanup attempt should be allowed again")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	rl.Stop()
	rl.Stop()
}
