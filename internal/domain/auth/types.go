package auth

// Package auth contains domain-level types for principals, sessions and the
// single authorization policy. It is pure and free of adapter concerns.

import "time"

// Role represents an application's authorization role.
// Keep string form for easy persistence in session records.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser || r == RoleGuest
}

// Principal is the caller on whose behalf an operation runs.
// The zero value is the anonymous principal.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Anonymous reports whether the principal carries no identity.
func (p Principal) Anonymous() bool { return p.ID == "" }

// Session is the server-side record persisted for an authenticated user.
// ID is an opaque session identifier (e.g., random URL-safe string).
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Groups    []string  `json:"groups,omitempty"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsGuest returns true if the session role is guest.
func (s Session) IsGuest() bool { return s.Role == RoleGuest }

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Principal returns the principal the session authenticates.
func (s Session) Principal() Principal {
	return Principal{ID: s.UserID, Email: s.Email, Role: s.Role}
}
