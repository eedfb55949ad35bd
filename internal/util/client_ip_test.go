package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPResolution(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8", "2001:db8::1"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		trusted    *TrustedProxies
		want       string
	}{
		{
			name:       "direct peer without proxies",
			remoteAddr: "198.51.100.10:42000",
			want:       "198.51.100.10",
		},
		{
			name:       "forwarded headers ignored from untrusted peer",
			remoteAddr: "198.51.100.10:42000",
			xff:        "203.0.113.5",
			xrip:       "203.0.113.6",
			trusted:    trusted,
			want:       "198.51.100.10",
		},
		{
			name:       "single forwarded hop behind trusted proxy",
			remoteAddr: "10.1.2.3:42000",
			xff:        "203.0.113.5",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "first untrusted hop from the right wins",
			remoteAddr: "10.1.2.3:42000",
			xff:        "198.51.100.99, 203.0.113.5, 10.0.0.7",
			trusted:    trusted,
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip fallback when xff is garbage",
			remoteAddr: "10.1.2.3:42000",
			xff:        "not-an-ip",
			xrip:       "203.0.113.7",
			trusted:    trusted,
			want:       "203.0.113.7",
		},
		{
			name:       "fully trusted chain returns leftmost",
			remoteAddr: "10.1.2.3:42000",
			xff:        "10.9.9.9, 10.0.0.7",
			trusted:    trusted,
			want:       "10.9.9.9",
		},
		{
			name:       "ipv6 trusted proxy",
			remoteAddr: "[2001:db8::1]:42000",
			xff:        "203.0.113.8",
			trusted:    trusted,
			want:       "203.0.113.8",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://example.com/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			if got := ClientIP(req, tc.trusted); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxiesValidation(t *testing.T) {
	if tp, err := NewTrustedProxies(nil); err != nil || tp != nil {
		t.Fatalf("empty input should yield nil set, got %v %v", tp, err)
	}
	if tp, err := NewTrustedProxies([]string{" ", ""}); err != nil || tp != nil {
		t.Fatalf("blank entries should yield nil set, got %v %v", tp, err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"}); err != nil {
		t.Fatalf("valid entries rejected: %v", err)
	}
	if _, err := NewTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error for malformed CIDR")
	}
	if _, err := NewTrustedProxies([]string{"example.com"}); err == nil {
		t.Fatal("expected error for hostname entry")
	}
}
