package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/repository"
)

// InvitationView is what an invitee sees before accepting.
type InvitationView struct {
	Invitation *domain.Invitation
	Tenant     *domain.Tenant
}

// Invite creates an invitation and emails the link. The raw token is
// returned so admins can share the link by other means.
func (s *Service) Invite(ctx context.Context, actor *domain.Membership, email string, role domain.Role) (*domain.Invitation, string, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, "", err
	}
	if !role.Assignable() {
		return nil, "", domain.ErrInvalidRole
	}
	if err := auth.ValidateEmail(email); err != nil {
		return nil, "", err
	}

	tenant, err := s.tenants.GetByID(ctx, actor.TenantID)
	if err != nil {
		return nil, "", err
	}

	token, err := auth.GenerateToken(32)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	inv := &domain.Invitation{
		ID:        uuid.New(),
		TenantID:  actor.TenantID,
		Email:     auth.NormalizeEmail(email),
		Role:      role,
		TokenHash: auth.HashToken(token),
		InvitedBy: actor.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.InvitationTTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("create invitation: %w", err)
	}

	link := s.config.BaseURL + "/invite/" + token
	if err := s.mailer.SendInvitationEmail(ctx, inv.Email, tenant.Name, link); err != nil {
		// The invitation stands; the admin can resend or copy the link.
		s.logger.Warn("invitation email failed", "error", err, "invitation_id", inv.ID)
	}
	return inv, token, nil
}

// PendingInvitations lists the actor's organization's open invitations.
func (s *Service) PendingInvitations(ctx context.Context, actor *domain.Membership) ([]*domain.Invitation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.invitations.ListPending(ctx, actor.TenantID)
}

// GetInvitation looks up a pending invitation by raw token.
func (s *Service) GetInvitation(ctx context.Context, token string) (*InvitationView, error) {
	inv, err := s.invitations.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}
	if err := inv.Pending(s.now()); err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetByID(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	return &InvitationView{Invitation: inv, Tenant: tenant}, nil
}

// AcceptInvitation activates the principal's membership in the inviting
// organization. The principal's email must match the invitation.
func (s *Service) AcceptInvitation(ctx context.Context, token string, principal *domain.Principal) (*domain.Membership, error) {
	view, err := s.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	inv := view.Invitation
	if !strings.EqualFold(inv.Email, principal.Email) {
		return nil, domain.ErrInvitationEmailMatch
	}

	if _, err := s.memberships.GetActiveByUserID(ctx, principal.ID); err == nil {
		return nil, domain.ErrAlreadyMember
	} else if !errors.Is(err, domain.ErrMembershipNotFound) {
		return nil, err
	}

	now := s.now()
	membership := &domain.Membership{
		ID:        uuid.New(),
		TenantID:  inv.TenantID,
		UserID:    principal.ID,
		Role:      inv.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = repository.Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.invitations.MarkAcceptedTx(ctx, tx, inv.ID, now); err != nil {
			return err
		}
		return s.memberships.UpsertActiveTx(ctx, tx, membership)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation accepted", "tenant_id", inv.TenantID, "user_id", principal.ID, "role", inv.Role)
	return membership, nil
}
