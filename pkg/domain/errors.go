package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound              = errors.New("user not found")
	ErrUserAlreadyExists         = errors.New("user already exists")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionExpired            = errors.New("session expired")
	ErrSessionRevoked            = errors.New("session revoked")
	ErrInvalidToken              = errors.New("invalid token")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
	ErrVerificationTokenExpired  = errors.New("verification token expired")
	ErrVerificationTokenConsumed = errors.New("verification token already used")
	ErrVerificationTokenInvalid  = errors.New("invalid verification token")
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrWeakPassword     = errors.New("password does not meet requirements")
	ErrBreachedPassword = errors.New("password has appeared in a known data breach")
	ErrInvalidRole      = errors.New("invalid role")
)

// Tenancy errors
var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrAlreadyMember        = errors.New("user already belongs to an organization")
	ErrForbidden            = errors.New("operation not permitted for this role")
	ErrInvitationNotFound   = errors.New("invitation not found")
	ErrInvitationExpired    = errors.New("invitation expired")
	ErrInvitationAccepted   = errors.New("invitation already accepted")
	ErrInvitationEmailMatch = errors.New("invitation was issued to a different email address")
)

// Rate limiting errors
var (
	ErrRateLimitWindowNotFound = errors.New("rate limit window not found")
	ErrUnknownRateLimitAction  = errors.New("unknown rate limit action")
)
