package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session represents an authentication session.
type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	Metadata   json.RawMessage

	// Set by the last rotation; PreviousTokenHash is the replaced hash.
	PreviousTokenHash *string
	RotatedAt         *time.Time
}

// SessionMetadata holds optional session context.
type SessionMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// IsValid checks if the session is valid (not expired and not revoked).
func (s *Session) IsValid() bool {
	if s.RevokedAt != nil {
		return false
	}
	return time.Now().Before(s.ExpiresAt)
}

// TokenPair represents the access and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
