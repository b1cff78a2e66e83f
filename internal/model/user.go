package model

import "time"

// Roles stored in users.role and carried in the access token.
const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// User mirrors a row of the users table.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken mirrors refresh_tokens. Only the SHA-256 of the raw token
// is stored.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Identity is the caller as seen by the access policy. The zero value is
// anonymous.
type Identity struct {
	UserID uint64
	Role   string
}

func (i Identity) Authenticated() bool { return i.UserID != 0 }

func (i Identity) IsAdmin() bool { return i.Authenticated() && i.Role == RoleAdmin }
