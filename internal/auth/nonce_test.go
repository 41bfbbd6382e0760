package auth

import (
	"testing"
	"time"
)

func newTestNonceService(t *testing.T, ttl time.Duration) *NonceService {
	t.Helper()
	ns, err := NewNonceService("nonce-secret-at-least-16-chars", ttl)
	if err != nil {
		t.Fatalf("NewNonceService: %v", err)
	}
	return ns
}

func TestNonce_RoundTrip(t *testing.T) {
	ns := newTestNonceService(t, time.Hour)

	nonce, err := ns.Create(ActionCommunity, 5)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !ns.Verify(nonce, ActionCommunity, 5) {
		t.Error("Verify() rejected a fresh nonce")
	}
}

func TestNonce_Mismatches(t *testing.T) {
	ns := newTestNonceService(t, time.Hour)
	nonce, _ := ns.Create(ActionEvent, 5)

	other, _ := NewNonceService("a-different-secret-of-length", time.Hour)

	tests := []struct {
		name   string
		ns     *NonceService
		token  string
		action string
		user   int64
	}{
		{"wrong action", ns, nonce, ActionCommunity, 5},
		{"wrong user", ns, nonce, ActionEvent, 6},
		{"anonymous", ns, nonce, ActionEvent, 0},
		{"wrong secret", other, nonce, ActionEvent, 5},
		{"empty token", ns, "", ActionEvent, 5},
		{"garbage", ns, "abc.def.ghi", ActionEvent, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ns.Verify(tt.token, tt.action, tt.user) {
				t.Errorf("Verify() accepted nonce with %s", tt.name)
			}
		})
	}
}

func TestNonce_Expired(t *testing.T) {
	ns := &NonceService{secret: []byte("nonce-secret-at-least-16-chars"), ttl: -time.Second}
	nonce, err := ns.Create(ActionGuestRSVP, 0)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ns.Verify(nonce, ActionGuestRSVP, 0) {
		t.Error("Verify() accepted an expired nonce")
	}
}

func TestNonce_UniquePerCall(t *testing.T) {
	ns := newTestNonceService(t, time.Hour)
	a, _ := ns.Create(ActionAppNonce, 1)
	b, _ := ns.Create(ActionAppNonce, 1)
	if a == b {
		t.Error("two nonces for the same action and user are identical")
	}
}

func TestNewNonceService_Rejects(t *testing.T) {
	if _, err := NewNonceService("short", time.Hour); err == nil {
		t.Error("short secret accepted")
	}
	if _, err := NewNonceService("nonce-secret-at-least-16-chars", 0); err == nil {
		t.Error("zero ttl accepted")
	}
}
