package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"


	"github.com/tendant/qc-inspect/pkg/domain"
)

// VerificationTokensRepository stores single-use email tokens.
type VerificationTokensRepository struct {
	db *sql.DB
}

func NewVerificationTokensRepository(db *sql.DB) *VerificationTokensRepository {
	return &VerificationTokensRepository{db: db}
}

// Create stores a token after consuming any outstanding token of the same
// kind for the user, so only the newest link works.
func (r *VerificationTokensRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	return Tx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE verification_tokens
			SET consumed_at = NOW()
			WHERE user_id = $1 AND kind = $2 AND consumed_at IS NULL
		`, token.UserID, token.Kind)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO verification_tokens (id, user_id, token_hash, kind, created_at, expires_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, token.ID, token.UserID, token.TokenHash, token.Kind, token.CreatedAt, token.ExpiresAt, token.Metadata)
		return err
	})
}

// ConsumeTx marks the matching token consumed and returns it. Expired,
// already used, and unknown tokens are reported as distinct errors.
func (r *VerificationTokensRepository) ConsumeTx(ctx context.Context, q Querier, tokenHash string, kind domain.VerificationTokenKind) (*domain.VerificationToken, error) {
	token := &domain.VerificationToken{}
	err := q.QueryRowContext(ctx, `
		UPDATE verification_tokens
		SET consumed_at = NOW()
		WHERE token_hash = $1 AND kind = $2 AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING id, user_id, token_hash, kind, created_at, expires_at, consumed_at
	`, tokenHash, kind).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Kind,
		&token.CreatedAt, &token.ExpiresAt, &token.ConsumedAt,
	)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var consumedAt *time.Time
	var expiresAt time.Time
	err = q.QueryRowContext(ctx, `
		SELECT consumed_at, expires_at FROM verification_tokens
		WHERE token_hash = $1 AND kind = $2
	`, tokenHash, kind).Scan(&consumedAt, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrVerificationTokenNotFound
	case err != nil:
		return nil, err
	case consumedAt != nil:
		return nil, domain.ErrVerificationTokenConsumed
	default:
		return nil, domain.ErrVerificationTokenExpired
	}
}

// DeleteStale removes tokens that expired or were consumed before the cutoff.
func (r *VerificationTokensRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_tokens
		WHERE expires_at < $1 OR (consumed_at IS NOT NULL AND consumed_at < $1)
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
