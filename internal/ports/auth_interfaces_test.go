package ports_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/target/mmk-inference/internal/adapters/authroles"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	mocks "github.com/target/mmk-inference/internal/mocks/auth"
	"github.com/target/mmk-inference/internal/ports"
)

// This test verifies that our doubles and adapters conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.RoleMapper = authroles.StaticRoleMapper{}
}

func TestMemorySessionStore_NotFoundSentinel(t *testing.T) {
	store := mocks.NewMemorySessionStore()
	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ports.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sess := domainauth.Session{ID: "s1", UserID: "u1", Role: domainauth.RoleUser, ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(context.Background(), "s1")
	if err != nil || got.UserID != "u1" {
		t.Fatalf("get = %+v, %v", got, err)
	}
}
