package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// InvitationsRepository handles tenant invitations.
type InvitationsRepository struct {
	db *sql.DB
}

func NewInvitationsRepository(db *sql.DB) *InvitationsRepository {
	return &InvitationsRepository{db: db}
}

const invitationColumns = `id, tenant_id, email, role, token_hash, invited_by, created_at, expires_at, accepted_at`

func scanInvitation(row interface{ Scan(...any) error }) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.TokenHash,
		&inv.InvitedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvitationsRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (id, tenant_id, email, role, token_hash, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.TenantID, inv.Email, inv.Role, inv.TokenHash,
		inv.InvitedBy, inv.CreatedAt, inv.ExpiresAt,
	)
	return err
}

func (r *InvitationsRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token_hash = $1`
	return scanInvitation(r.db.QueryRowContext(ctx, query, tokenHash))
}

// ListPending returns the tenant's unaccepted, unexpired invitations.
func (r *InvitationsRepository) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + `
		FROM invitations
		WHERE tenant_id = $1 AND accepted_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkAcceptedTx stamps the invitation, failing if someone accepted it first.
func (r *InvitationsRepository) MarkAcceptedTx(ctx context.Context, q Querier, id uuid.UUID, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE invitations SET accepted_at = $2
		WHERE id = $1 AND accepted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrInvitationAccepted
	}
	return nil
}
