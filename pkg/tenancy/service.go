// Package tenancy manages organizations and the memberships that tie users
// to them.
package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/repository"
)

// InvitationMailer delivers invitation links.
type InvitationMailer interface {
	SendInvitationEmail(ctx context.Context, to, tenantName, inviteURL string) error
}

type Config struct {
	InvitationTTL time.Duration
	BaseURL       string
}

type Service struct {
	config      Config
	db          *sql.DB
	tenants     *repository.TenantsRepository
	memberships *repository.MembershipsRepository
	invitations *repository.InvitationsRepository
	mailer      InvitationMailer
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(
	config Config,
	db *sql.DB,
	tenants *repository.TenantsRepository,
	memberships *repository.MembershipsRepository,
	invitations *repository.InvitationsRepository,
	mailer InvitationMailer,
	logger *slog.Logger,
) *Service {
	if config.InvitationTTL == 0 {
		config.InvitationTTL = 7 * 24 * time.Hour
	}
	return &Service{
		config:      config,
		db:          db,
		tenants:     tenants,
		memberships: memberships,
		invitations: invitations,
		mailer:      mailer,
		logger:      logger,
		now:         time.Now,
	}
}

// ErrNameRequired is returned when an organization name is blank.
var ErrNameRequired = errors.New("organization name is required")

// CreateTenant creates an organization owned by userID. A user with an
// active membership elsewhere cannot create another.
func (s *Service) CreateTenant(ctx context.Context, userID uuid.UUID, name string) (*domain.Tenant, *domain.Membership, error) {
	name = auth.SanitizeName(name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}

	if _, err := s.memberships.GetActiveByUserID(ctx, userID); err == nil {
		return nil, nil, domain.ErrAlreadyMember
	} else if !errors.Is(err, domain.ErrMembershipNotFound) {
		return nil, nil, err
	}

	now := s.now()
	tenant := &domain.Tenant{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slugify(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	membership := &domain.Membership{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		UserID:    userID,
		Role:      domain.RoleOwner,
		Status:    domain.MembershipStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := repository.Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.tenants.CreateTx(ctx, tx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		return s.memberships.CreateTx(ctx, tx, membership)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("tenant created", "tenant_id", tenant.ID, "owner_id", userID)
	return tenant, membership, nil
}

// GetTenant returns the actor's organization.
func (s *Service) GetTenant(ctx context.Context, actor *domain.Membership) (*domain.Tenant, error) {
	if !actor.IsActive() {
		return nil, domain.ErrMembershipNotFound
	}
	return s.tenants.GetByID(ctx, actor.TenantID)
}

// RenameTenant changes the display name. Admins only.
func (s *Service) RenameTenant(ctx context.Context, actor *domain.Membership, name string) (*domain.Tenant, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name = auth.SanitizeName(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := s.tenants.Rename(ctx, actor.TenantID, name); err != nil {
		return nil, err
	}
	return s.tenants.GetByID(ctx, actor.TenantID)
}

// ListMembers returns every membership in the actor's organization.
func (s *Service) ListMembers(ctx context.Context, actor *domain.Membership) ([]*repository.Member, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.memberships.ListByTenant(ctx, actor.TenantID)
}

// ChangeRole assigns manager or worker to another member.
func (s *Service) ChangeRole(ctx context.Context, actor *domain.Membership, memberID uuid.UUID, role domain.Role) error {
	if !role.Assignable() {
		return domain.ErrInvalidRole
	}
	if _, err := s.modifiableMember(ctx, actor, memberID); err != nil {
		return err
	}
	if err := s.memberships.UpdateRole(ctx, actor.TenantID, memberID, role); err != nil {
		return err
	}
	s.logger.Info("member role changed", "tenant_id", actor.TenantID, "membership_id", memberID, "role", role, "by", actor.UserID)
	return nil
}

// DeactivateMember revokes another member's access. The membership row is
// kept so it can be reactivated through a new invitation.
func (s *Service) DeactivateMember(ctx context.Context, actor *domain.Membership, memberID uuid.UUID) error {
	if _, err := s.modifiableMember(ctx, actor, memberID); err != nil {
		return err
	}
	if err := s.memberships.UpdateStatus(ctx, actor.TenantID, memberID, domain.MembershipStatusInactive); err != nil {
		return err
	}
	s.logger.Info("member deactivated", "tenant_id", actor.TenantID, "membership_id", memberID, "by", actor.UserID)
	return nil
}

// modifiableMember loads a member the actor may change: not the owner and
// not the actor.
func (s *Service) modifiableMember(ctx context.Context, actor *domain.Membership, memberID uuid.UUID) (*domain.Membership, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	target, err := s.memberships.GetByID(ctx, actor.TenantID, memberID)
	if err != nil {
		return nil, err
	}
	if target.UserID == actor.UserID || target.Role == domain.RoleOwner {
		return nil, domain.ErrForbidden
	}
	return target, nil
}

func requireAdmin(actor *domain.Membership) error {
	if !actor.IsActive() {
		return domain.ErrMembershipNotFound
	}
	if !actor.Role.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a unique URL-safe identifier from a display name.
func slugify(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "org"
	}
	if len(slug) > 32 {
		slug = strings.TrimRight(slug[:32], "-")
	}
	return slug + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
