package auth

import (
	"testing"
	"time"
)

func TestSession_IsGuest(t *testing.T) {
	s := Session{Role: RoleGuest}
	if !s.IsGuest() {
		t.Fatalf("expected guest")
	}
	if (Session{Role: RoleUser}).IsGuest() {
		t.Fatalf("did not expect guest")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	if (Session{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatalf("session should still be valid")
	}
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Fatalf("session should expire at its deadline")
	}
	if (Session{}).Expired(now) {
		t.Fatalf("session without expiry should not expire")
	}
}

func TestSession_Principal(t *testing.T) {
	p := Session{UserID: "alice", Email: "a@example.com", Role: RoleUser}.Principal()
	if p.ID != "alice" || p.Role != RoleUser || p.Anonymous() {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if !(Principal{}).Anonymous() {
		t.Fatalf("zero principal should be anonymous")
	}
}
