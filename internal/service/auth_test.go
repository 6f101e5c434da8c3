package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-inference/internal/adapters/authroles"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	apperrors "github.com/target/mmk-inference/internal/errors"
	mocks "github.com/target/mmk-inference/internal/mocks/auth"
)

// failingSessionStore fails every call with err.
type failingSessionStore struct{ err error }

func (f failingSessionStore) Save(context.Context, domainauth.Session) error { return f.err }
func (f failingSessionStore) Get(context.Context, string) (domainauth.Session, error) {
	return domainauth.Session{}, f.err
}
func (f failingSessionStore) Delete(context.Context, string) error { return f.err }

var testRoleMapper = authroles.StaticRoleMapper{AdminGroup: "admins", UserGroup: "users"}

func newTestAuthService(t *testing.T, store *mocks.MemorySessionStore, now func() time.Time) *AuthService {
	t.Helper()
	svc, err := NewAuthService(AuthServiceOptions{
		Sessions:   store,
		Roles:      testRoleMapper,
		DefaultTTL: time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return svc
}

func TestNewAuthService_Validation(t *testing.T) {
	_, err := NewAuthService(AuthServiceOptions{Roles: testRoleMapper})
	require.Error(t, err)

	_, err = NewAuthService(AuthServiceOptions{Sessions: mocks.NewMemorySessionStore()})
	require.Error(t, err)
}

func TestAuthService_IssueAndResolve(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	svc := newTestAuthService(t, store, nil)

	sess, err := svc.IssueSession(ctx, IssueSessionInput{UserID: "alice", Email: "alice@example.com", Groups: []string{"users"}})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	p, err := svc.Resolve(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.ID)
	assert.Equal(t, domainauth.RoleUser, p.Role)

	require.NoError(t, svc.RevokeSession(ctx, sess.ID))
	_, err = svc.Resolve(ctx, sess.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAuthService_IssueSession_RequiresUser(t *testing.T) {
	svc := newTestAuthService(t, mocks.NewMemorySessionStore(), nil)
	_, err := svc.IssueSession(context.Background(), IssueSessionInput{UserID: "  "})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestAuthService_Resolve_GuestIsAnonymous(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(t, mocks.NewMemorySessionStore(), nil)

	sess, err := svc.IssueSession(ctx, IssueSessionInput{UserID: "visitor", Groups: []string{"nobody"}})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleGuest, sess.Role)

	p, err := svc.Resolve(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, p.Anonymous())
}

func TestAuthService_Resolve_Expired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	store := mocks.NewMemorySessionStore()
	svc := newTestAuthService(t, store, clock)

	sess, err := svc.IssueSession(ctx, IssueSessionInput{UserID: "bob", Groups: []string{"admins"}, TTL: time.Minute})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = svc.Resolve(ctx, sess.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAuthService_Resolve_EmptyAndUnknown(t *testing.T) {
	svc := newTestAuthService(t, mocks.NewMemorySessionStore(), nil)

	_, err := svc.Resolve(context.Background(), "")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Resolve(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAuthService_Resolve_StoreError(t *testing.T) {
	boom := errors.New("redis down")
	svc, err := NewAuthService(AuthServiceOptions{Sessions: failingSessionStore{err: boom}, Roles: testRoleMapper})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "token")
	require.ErrorIs(t, err, boom)
	assert.False(t, apperrors.IsNotFound(err))

	_, err = svc.IssueSession(context.Background(), IssueSessionInput{UserID: "alice"})
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, svc.RevokeSession(context.Background(), "token"), boom)
	require.NoError(t, svc.RevokeSession(context.Background(), ""))
}

func TestAuthService_Resolve_CoalescesConcurrentLookups(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMemorySessionStore()
	svc := newTestAuthService(t, store, nil)

	sess, err := svc.IssueSession(ctx, IssueSessionInput{UserID: "carol", Groups: []string{"users"}})
	require.NoError(t, err)

	store.GetDelay = 50 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p, err := svc.Resolve(ctx, sess.ID)
			assert.NoError(t, err)
			assert.Equal(t, "carol", p.ID)
		}()
	}
	close(start)
	wg.Wait()

	assert.Less(t, store.Calls(), callers)
}
