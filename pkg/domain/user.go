package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents the account.
type User struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Name          *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// Principal returns the request-level identity for the user.
func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID, Email: u.Email}
}

// UserPassword stores password credentials separately from user profile.
type UserPassword struct {
	UserID            uuid.UUID
	PasswordHash      string
	PasswordUpdatedAt time.Time
}

// Principal is an authenticated caller, independent of tenant context.
type Principal struct {
	ID    uuid.UUID
	Email string
}
