package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	apperrors "github.com/target/mmk-inference/internal/errors"
	"github.com/target/mmk-inference/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Sessions   ports.SessionStore // Required: session persistence
	Roles      ports.RoleMapper   // Required: maps groups to roles
	DefaultTTL time.Duration      // Optional: session lifetime, defaults to 24h
	Now        func() time.Time   // Optional: clock, defaults to time.Now
	Logger     *slog.Logger       // Optional: structured logger
}

// IssueSessionInput describes a session to mint.
type IssueSessionInput struct {
	UserID string
	Email  string
	Groups []string
	TTL    time.Duration
}

// AuthService mints, revokes and resolves sessions.
type AuthService struct {
	sessions   ports.SessionStore
	roles      ports.RoleMapper
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	lookups    singleflight.Group
}

var _ core.PrincipalResolver = (*AuthService)(nil)

// NewAuthService constructs an AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.Roles == nil {
		return nil, errors.New("RoleMapper is required")
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "auth_service")
	}

	return &AuthService{
		sessions:   opts.Sessions,
		roles:      opts.Roles,
		defaultTTL: ttl,
		now:        now,
		logger:     logger,
	}, nil
}

// IssueSession creates and persists a session for the given identity.
func (s *AuthService) IssueSession(ctx context.Context, in IssueSessionInput) (domainauth.Session, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return domainauth.Session{}, apperrors.ValidationField("user", "user id is required")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	sess := domainauth.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     in.Email,
		Groups:    append([]string(nil), in.Groups...),
		Role:      s.roles.Map(in.Groups),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "session issued", "user", userID, "role", sess.Role, "expires_at", sess.ExpiresAt)
	}
	return sess, nil
}

// RevokeSession deletes a session. Revoking an unknown id is not an error.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Resolve returns the principal owning the session token. Concurrent lookups
// of the same token share one store round trip. Guest sessions resolve to the
// anonymous principal.
func (s *AuthService) Resolve(ctx context.Context, token string) (domainauth.Principal, error) {
	if token == "" {
		return domainauth.Principal{}, apperrors.NotFound("session not found")
	}

	v, err, _ := s.lookups.Do(token, func() (any, error) {
		return s.sessions.Get(ctx, token)
	})
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return domainauth.Principal{}, apperrors.NotFound("session not found")
		}
		return domainauth.Principal{}, fmt.Errorf("get session: %w", err)
	}

	sess, _ := v.(domainauth.Session)
	if sess.Expired(s.now()) {
		return domainauth.Principal{}, apperrors.NotFound("session expired")
	}
	if sess.IsGuest() {
		return domainauth.Principal{}, nil
	}
	return sess.Principal(), nil
}
