package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// CredentialsRepository stores password hashes apart from the user profile.
type CredentialsRepository struct {
	db *sql.DB
}

func NewCredentialsRepository(db *sql.DB) *CredentialsRepository {
	return &CredentialsRepository{db: db}
}

// SetPasswordTx creates or replaces the user's password hash.
func (r *CredentialsRepository) SetPasswordTx(ctx context.Context, q Querier, cred *domain.UserPassword) error {
	query := `
		INSERT INTO user_passwords (user_id, password_hash, password_updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    password_updated_at = EXCLUDED.password_updated_at
	`
	_, err := q.ExecContext(ctx, query, cred.UserID, cred.PasswordHash, cred.PasswordUpdatedAt)
	return err
}

func (r *CredentialsRepository) SetPassword(ctx context.Context, cred *domain.UserPassword) error {
	return r.SetPasswordTx(ctx, r.db, cred)
}

// GetPassword returns domain.ErrInvalidCredentials when the user has no password.
func (r *CredentialsRepository) GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error) {
	query := `
		SELECT user_id, password_hash, password_updated_at
		FROM user_passwords
		WHERE user_id = $1
	`
	cred := &domain.UserPassword{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cred.UserID, &cred.PasswordHash, &cred.PasswordUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}
