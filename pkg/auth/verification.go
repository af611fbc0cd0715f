package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/repository"
)

// Mailer delivers account emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, verifyURL string) error
	SendPasswordResetEmail(ctx context.Context, to, resetURL string) error
}

type VerificationConfig struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
	// BaseURL is the public origin used to build links in emails.
	BaseURL string
}

// VerificationService issues and redeems email verification and password
// reset links.
type VerificationService struct {
	config    VerificationConfig
	db        *sql.DB
	tokens    *repository.VerificationTokensRepository
	users     *repository.UsersRepository
	creds     *repository.CredentialsRepository
	passwords *PasswordService
	sessions  *SessionService
	mailer    Mailer
	logger    *slog.Logger
}

func NewVerificationService(
	config VerificationConfig,
	db *sql.DB,
	tokens *repository.VerificationTokensRepository,
	users *repository.UsersRepository,
	creds *repository.CredentialsRepository,
	passwords *PasswordService,
	sessions *SessionService,
	mailer Mailer,
	logger *slog.Logger,
) *VerificationService {
	if config.EmailVerificationTTL == 0 {
		config.EmailVerificationTTL = 24 * time.Hour
	}
	if config.PasswordResetTTL == 0 {
		config.PasswordResetTTL = time.Hour
	}
	return &VerificationService{
		config:    config,
		db:        db,
		tokens:    tokens,
		users:     users,
		creds:     creds,
		passwords: passwords,
		sessions:  sessions,
		mailer:    mailer,
		logger:    logger,
	}
}

// SendEmailVerification emails a confirmation link to the user.
func (s *VerificationService) SendEmailVerification(ctx context.Context, user *domain.User, meta domain.SessionMetadata) error {
	token, err := s.createToken(ctx, user.ID, domain.TokenKindEmailVerification, s.config.EmailVerificationTTL, meta)
	if err != nil {
		return err
	}
	return s.mailer.SendVerificationEmail(ctx, user.Email, s.link("/auth/confirm", token))
}

// VerifyEmail redeems an email verification token.
func (s *VerificationService) VerifyEmail(ctx context.Context, token string) error {
	return repository.Tx(ctx, s.db, func(tx *sql.Tx) error {
		vt, err := s.tokens.ConsumeTx(ctx, tx, HashToken(token), domain.TokenKindEmailVerification)
		if err != nil {
			return err
		}
		return s.users.SetEmailVerifiedTx(ctx, tx, vt.UserID)
	})
}

// RequestPasswordReset emails a reset link if the address belongs to an
// account. Unknown addresses succeed silently.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, email string, meta domain.SessionMetadata) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.createToken(ctx, user.ID, domain.TokenKindPasswordReset, s.config.PasswordResetTTL, meta)
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordResetEmail(ctx, user.Email, s.link("/auth/reset-password", token))
}

// ResetPassword sets a new password using a reset token and signs out
// every session of the account.
func (s *VerificationService) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := s.passwords.HashNewPassword(ctx, password)
	if err != nil {
		return err
	}

	var userID uuid.UUID
	err = repository.Tx(ctx, s.db, func(tx *sql.Tx) error {
		vt, err := s.tokens.ConsumeTx(ctx, tx, HashToken(token), domain.TokenKindPasswordReset)
		if err != nil {
			return err
		}
		userID = vt.UserID
		return s.creds.SetPasswordTx(ctx, tx, &domain.UserPassword{
			UserID:            vt.UserID,
			PasswordHash:      hash,
			PasswordUpdatedAt: time.Now(),
		})
	})
	if err != nil {
		return err
	}
	return s.sessions.RevokeAllSessions(ctx, userID)
}

func (s *VerificationService) createToken(ctx context.Context, userID uuid.UUID, kind domain.VerificationTokenKind, ttl time.Duration, meta domain.SessionMetadata) (string, error) {
	raw, err := GenerateToken(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	metadata, _ := json.Marshal(meta)
	now := time.Now()
	err = s.tokens.Create(ctx, &domain.VerificationToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(raw),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Metadata:  metadata,
	})
	if err != nil {
		return "", fmt.Errorf("store %s token: %w", kind, err)
	}
	return raw, nil
}

func (s *VerificationService) link(path, token string) string {
	return s.config.BaseURL + path + "?token=" + url.QueryEscape(token)
}
