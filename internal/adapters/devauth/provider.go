// Package devauth provides a config-driven principal resolver for local development.
package devauth

import (
	"context"
	"errors"

	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	"github.com/target/mmk-inference/internal/ports"
)

// Config controls the dev identity. UserID and Email are required; Groups may be empty.
type Config struct {
	UserID string
	Email  string
	Groups []string
}

// Resolver implements core.PrincipalResolver by ignoring the credential and
// returning the configured identity, with its role derived from Groups.
type Resolver struct {
	principal domainauth.Principal
}

// NewResolver constructs a dev resolver from Config.
func NewResolver(cfg Config, roles ports.RoleMapper) (*Resolver, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if roles == nil {
		return nil, errors.New("dev auth: RoleMapper is required")
	}
	return &Resolver{
		principal: domainauth.Principal{
			ID:    cfg.UserID,
			Email: cfg.Email,
			Role:  roles.Map(append([]string(nil), cfg.Groups...)),
		},
	}, nil
}

// Resolve returns the dev principal for any token.
func (r *Resolver) Resolve(_ context.Context, _ string) (domainauth.Principal, error) {
	return r.principal, nil
}
