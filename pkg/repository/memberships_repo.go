package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// MembershipsRepository handles membership data persistence.
type MembershipsRepository struct {
	db *sql.DB
}

// NewMembershipsRepository creates a new memberships repository.
func NewMembershipsRepository(db *sql.DB) *MembershipsRepository {
	return &MembershipsRepository{db: db}
}

// Member is a membership joined with the member's user profile.
type Member struct {
	Membership domain.Membership
	Email      string
	Name       *string
}

const membershipColumns = `id, tenant_id, user_id, role, status, created_at, updated_at`

func scanMembership(row interface{ Scan(...any) error }) (*domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateTx creates a new membership within a transaction.
func (r *MembershipsRepository) CreateTx(ctx context.Context, q Querier, membership *domain.Membership) error {
	query := `
		INSERT INTO memberships (id, tenant_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		membership.ID,
		membership.TenantID,
		membership.UserID,
		membership.Role,
		membership.Status,
		membership.CreatedAt,
		membership.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	return err
}

// UpsertActiveTx activates the user's membership in the tenant with role,
// reusing a prior inactive row if one exists.
func (r *MembershipsRepository) UpsertActiveTx(ctx context.Context, q Querier, membership *domain.Membership) error {
	query := `
		INSERT INTO memberships (id, tenant_id, user_id, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, status = 'active', updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		membership.ID,
		membership.TenantID,
		membership.UserID,
		membership.Role,
		membership.CreatedAt,
	).Scan(&membership.ID)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	if err != nil {
		return err
	}
	membership.Status = domain.MembershipStatusActive
	return nil
}

// GetByID retrieves a membership within a tenant.
func (r *MembershipsRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1 AND tenant_id = $2`
	return scanMembership(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetActiveByUserID returns the user's active membership.
func (r *MembershipsRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Membership, error) {
	query := `
		SELECT m.id, m.tenant_id, m.user_id, m.role, m.status, m.created_at, m.updated_at
		FROM memberships m
		INNER JOIN tenants t ON m.tenant_id = t.id
		WHERE m.user_id = $1
			AND m.status = 'active'
			AND t.deleted_at IS NULL
	`
	return scanMembership(r.db.QueryRowContext(ctx, query, userID))
}

// ListByTenant returns every membership of a tenant with member details.
func (r *MembershipsRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Member, error) {
	query := `
		SELECT
			m.id, m.tenant_id, m.user_id, m.role, m.status, m.created_at, m.updated_at,
			u.email, u.name
		FROM memberships m
		INNER JOIN users u ON m.user_id = u.id
		WHERE m.tenant_id = $1 AND u.deleted_at IS NULL
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		err := rows.Scan(
			&m.Membership.ID,
			&m.Membership.TenantID,
			&m.Membership.UserID,
			&m.Membership.Role,
			&m.Membership.Status,
			&m.Membership.CreatedAt,
			&m.Membership.UpdatedAt,
			&m.Email,
			&m.Name,
		)
		if err != nil {
			return nil, err
		}
		members = append(members, &m)
	}

	return members, rows.Err()
}

// UpdateRole changes the role of a membership within a tenant.
func (r *MembershipsRepository) UpdateRole(ctx context.Context, tenantID, id uuid.UUID, role domain.Role) error {
	query := `
		UPDATE memberships
		SET role = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`
	return r.execOne(ctx, query, role, id, tenantID)
}

// UpdateStatus updates the status of a membership within a tenant.
func (r *MembershipsRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.MembershipStatus) error {
	query := `
		UPDATE memberships
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`
	return r.execOne(ctx, query, status, id, tenantID)
}

func (r *MembershipsRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrMembershipNotFound
	}

	return nil
}
