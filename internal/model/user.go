package model

import (
	"strings"
	"time"
)

// Role is the fixed account type chosen at registration.  It never
// changes for the lifetime of a user.
type Role string

const (
	RolePatient Role = "patient"
	RoleDriver  Role = "driver"
)

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RolePatient, RoleDriver:
		return r, true
	}
	return "", false
}

// User represents an account as stored in the `users` table.  Only
// drivers ever write Lat/Lng; for patients the location stays nil.
//
// Fields:
//  ID                – primary key identifier of the user.
//  Username          – unique display/login name.
//  Email             – unique, lower-cased email address.
//  PasswordHash      – bcrypt hashed password.
//  Role              – patient or driver.
//  Location          – last reported position (drivers only, nullable).
//  LocationUpdatedAt – when Location was last written (nullable).
//  CreatedAt         – timestamp of creation.
//  UpdatedAt         – timestamp of last update.
type User struct {
	ID                uint64       // users.id
	Username          string       // users.username
	Email             string       // users.email
	PasswordHash      string       // users.password_hash
	Role              Role         // users.role
	Location          *Coordinates // users.lat / users.lng (nullable)
	LocationUpdatedAt *time.Time   // users.location_updated_at (nullable)
	CreatedAt         time.Time    // users.created_at
	UpdatedAt         time.Time    // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The
// plain token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
