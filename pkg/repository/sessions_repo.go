package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// SessionsRepository handles refresh session persistence.
type SessionsRepository struct {
	db *sql.DB
}

// NewSessionsRepository creates a new sessions repository.
func NewSessionsRepository(db *sql.DB) *SessionsRepository {
	return &SessionsRepository{db: db}
}

// Create creates a new session.
func (r *SessionsRepository) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TokenHash,
		session.CreatedAt, session.ExpiresAt, []byte(session.Metadata),
	)
	return err
}

const sessionColumns = `id, user_id, token_hash, created_at, expires_at, revoked_at, last_seen_at, metadata, previous_token_hash, rotated_at`

func (r *SessionsRepository) getOne(ctx context.Context, query string, arg any) (*domain.Session, error) {
	session := &domain.Session{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt,
		&session.LastSeenAt, &metadata,
		&session.PreviousTokenHash, &session.RotatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	session.Metadata = metadata
	return session, nil
}

// GetByTokenHash retrieves an unrevoked session by token hash.
func (r *SessionsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
}

// GetByPreviousTokenHash finds the unrevoked session whose last rotation
// replaced tokenHash.
func (r *SessionsRepository) GetByPreviousTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE previous_token_hash = $1 AND revoked_at IS NULL`, tokenHash)
}

// RotateTokenHash swaps the refresh token hash, keeps the old one as
// previous_token_hash, extends the expiry, and records the access. It fails
// with domain.ErrSessionNotFound if the old hash was already rotated or
// revoked, so a replayed refresh token loses the race.
func (r *SessionsRepository) RotateTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string, expiresAt, rotatedAt time.Time) error {
	query := `
		UPDATE sessions
		SET token_hash = $3, previous_token_hash = $2, rotated_at = $5,
		    expires_at = $4, last_seen_at = $5
		WHERE id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, oldHash, newHash, expiresAt, rotatedAt)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// RevokeByTokenHash revokes a session by token hash.
func (r *SessionsRepository) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// RevokeAllByUserID revokes all sessions for a user.
func (r *SessionsRepository) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// DeleteExpired deletes sessions that expired or were revoked before the cutoff.
func (r *SessionsRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
