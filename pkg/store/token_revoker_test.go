package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevoker(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if revoked, _ := r.IsRevoked("tok"); revoked {
		t.Fatalf("unknown token should not be revoked")
	}
	if err := r.Revoke("tok", time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked("tok"); !revoked {
		t.Fatalf("expected token to be revoked")
	}
}

func TestMemoryTokenRevokerExpiry(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("tok", time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if revoked, _ := r.IsRevoked("tok"); revoked {
		t.Fatalf("expected revocation to lapse with ttl")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "")
	if revoked, err := r.IsRevoked("tok"); err != nil || revoked {
		t.Fatalf("unknown token: revoked=%v err=%v", revoked, err)
	}
	if err := r.Revoke("tok", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("tok")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected token to be revoked")
	}
	mr.FastForward(2 * time.Minute)
	if revoked, _ := r.IsRevoked("tok"); revoked {
		t.Fatalf("expected redis ttl to expire the entry")
	}
}
