package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeSession resolves bearer tokens against sessions stored in Redis.
	AuthModeSession AuthMode = "session"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "session", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: session, mock)", v)
	}
}

// SessionConfig controls how session credentials are read and stored.
type SessionConfig struct {
	CookieName string        `env:"COOKIE_NAME" envDefault:"session_id"`
	KeyPrefix  string        `env:"KEY_PREFIX"  envDefault:"session:"`
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"12h"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-user"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Groups []string `env:"GROUPS"  envDefault:"inference-admins" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines how callers are identified.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"session"`

	// Session configuration (used when Mode=session).
	Session SessionConfig `envPrefix:"SESSION_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup is the group that maps to the admin role.
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"inference-admins"`

	// UserGroup is the group that maps to the user role.
	UserGroup string `env:"USER_GROUP" envDefault:"inference-users"`
}
