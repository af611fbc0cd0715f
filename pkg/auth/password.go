package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/repository"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// dummyHash is verified against when the account does not exist so that
// unknown emails take as long as wrong passwords.
var dummyHash, _ = HashPassword("qc-inspect-timing-equalizer")

// PasswordService handles password authentication.
type PasswordService struct {
	db       *sql.DB
	users    *repository.UsersRepository
	creds    *repository.CredentialsRepository
	sessions *SessionService
	policy   *PasswordPolicy
	breach   BreachChecker
}

// NewPasswordService creates a new password service. breach may be nil.
func NewPasswordService(db *sql.DB, users *repository.UsersRepository, creds *repository.CredentialsRepository, sessions *SessionService, policy *PasswordPolicy, breach BreachChecker) *PasswordService {
	return &PasswordService{
		db:       db,
		users:    users,
		creds:    creds,
		sessions: sessions,
		policy:   policy,
		breach:   breach,
	}
}

// Register creates a new user with password credentials.
func (s *PasswordService) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	hash, err := s.HashNewPassword(ctx, password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if name = SanitizeName(name); name != "" {
		user.Name = &name
	}

	err = repository.Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return s.creds.SetPasswordTx(ctx, tx, &domain.UserPassword{
			UserID:            user.ID,
			PasswordHash:      hash,
			PasswordUpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies email and password and returns the user.
// Attempt throttling is the caller's job.
func (s *PasswordService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		VerifyPassword(password, dummyHash)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	cred, err := s.creds.GetPassword(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PasswordService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ChangePassword replaces the password after checking the current one and
// signs out every existing session.
func (s *PasswordService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	cred, err := s.creds.GetPassword(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(current, cred.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hash, err := s.HashNewPassword(ctx, next)
	if err != nil {
		return err
	}

	if err := s.creds.SetPassword(ctx, &domain.UserPassword{
		UserID:            userID,
		PasswordHash:      hash,
		PasswordUpdatedAt: time.Now(),
	}); err != nil {
		return err
	}
	return s.sessions.RevokeAllSessions(ctx, userID)
}

// HashNewPassword applies the password policy and breach check, then hashes.
func (s *PasswordService) HashNewPassword(ctx context.Context, password string) (string, error) {
	if s.policy != nil {
		if err := s.policy.ValidatePassword(password); err != nil {
			return "", err
		}
	}
	if s.breach != nil {
		breached, err := s.breach.Breached(ctx, password)
		if err == nil && breached {
			return "", domain.ErrBreachedPassword
		}
	}
	return HashPassword(password)
}

// HashPassword hashes a password using Argon2id.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against an Argon2id hash.
func VerifyPassword(password, encodedHash string) bool {
	hash, salt, t, m, p, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}
