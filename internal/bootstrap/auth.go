package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/adapters/authroles"
	"github.com/target/mmk-inference/internal/adapters/devauth"
	redisadapter "github.com/target/mmk-inference/internal/adapters/redis"
	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/service"
)

// AuthConfig contains configuration for building authentication.
type AuthConfig struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RoleMapper maps configured groups to roles.
func RoleMapper(cfg config.AuthConfig) authroles.StaticRoleMapper {
	return authroles.StaticRoleMapper{AdminGroup: cfg.AdminGroup, UserGroup: cfg.UserGroup}
}

// BuildAuthService returns the session-backed auth service. It needs Redis.
func BuildAuthService(cfg AuthConfig) (*service.AuthService, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("session auth requires redis")
	}
	return service.NewAuthService(service.AuthServiceOptions{
		Sessions:   redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, cfg.Auth.Session.KeyPrefix),
		Roles:      RoleMapper(cfg.Auth),
		DefaultTTL: cfg.Auth.Session.DefaultTTL,
		Logger:     cfg.Logger,
	})
}

// BuildResolver returns the principal resolver for the configured auth mode.
//
//nolint:ireturn // the auth mode decides the concrete resolver.
func BuildResolver(cfg AuthConfig) (core.PrincipalResolver, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		if cfg.Logger != nil {
			cfg.Logger.Warn("using mock authentication; every request acts as the dev identity",
				"user", cfg.Auth.DevAuth.UserID)
		}
		resolver, err := devauth.NewResolver(devauth.Config{
			UserID: cfg.Auth.DevAuth.UserID,
			Email:  cfg.Auth.DevAuth.Email,
			Groups: cfg.Auth.DevAuth.Groups,
		}, RoleMapper(cfg.Auth))
		if err != nil {
			return nil, err
		}
		return resolver, nil
	case config.AuthModeSession:
		svc, err := BuildAuthService(cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}
