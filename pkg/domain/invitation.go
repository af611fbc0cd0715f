package domain

import (
	"time"

	"github.com/google/uuid"
)

// Invitation grants a role in a tenant to whoever signs in with the invited email.
type Invitation struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Email      string
	Role       Role
	TokenHash  string
	InvitedBy  uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

// Pending returns nil when the invitation can still be accepted at now.
func (i *Invitation) Pending(now time.Time) error {
	if i.AcceptedAt != nil {
		return ErrInvitationAccepted
	}
	if !now.Before(i.ExpiresAt) {
		return ErrInvitationExpired
	}
	return nil
}
