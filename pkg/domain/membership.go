package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's privilege level within a tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// ParseRole converts a string to a Role, rejecting anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleManager, RoleWorker:
		return r, nil
	}
	return "", ErrInvalidRole
}

// IsAdmin reports whether the role may use admin-restricted areas.
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleManager
}

// Assignable reports whether the role can be granted through invitations or role changes.
// Ownership is only created together with the tenant.
func (r Role) Assignable() bool {
	return r == RoleManager || r == RoleWorker
}

// MembershipStatus represents the state of a user's membership.
type MembershipStatus string

const (
	MembershipStatusInvited  MembershipStatus = "invited"
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusInactive MembershipStatus = "inactive"
)

// Membership represents a user's membership in a tenant.
type Membership struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Role      Role
	Status    MembershipStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive returns true if the membership grants access.
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == MembershipStatusActive
}
