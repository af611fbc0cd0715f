package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization, the unit of data isolation.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
