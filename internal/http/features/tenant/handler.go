package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/repository"
	"github.com/tendant/qc-inspect/pkg/tenancy"
)

// Tenancy manages organizations, members and invitations.
type Tenancy interface {
	CreateTenant(ctx context.Context, userID uuid.UUID, name string) (*domain.Tenant, *domain.Membership, error)
	GetTenant(ctx context.Context, actor *domain.Membership) (*domain.Tenant, error)
	RenameTenant(ctx context.Context, actor *domain.Membership, name string) (*domain.Tenant, error)
	ListMembers(ctx context.Context, actor *domain.Membership) ([]*repository.Member, error)
	ChangeRole(ctx context.Context, actor *domain.Membership, memberID uuid.UUID, role domain.Role) error
	DeactivateMember(ctx context.Context, actor *domain.Membership, memberID uuid.UUID) error
	Invite(ctx context.Context, actor *domain.Membership, email string, role domain.Role) (*domain.Invitation, string, error)
	PendingInvitations(ctx context.Context, actor *domain.Membership) ([]*domain.Invitation, error)
	GetInvitation(ctx context.Context, token string) (*tenancy.InvitationView, error)
	AcceptInvitation(ctx context.Context, token string, principal *domain.Principal) (*domain.Membership, error)
}

// Handler serves onboarding, team, settings and invitation endpoints.
type Handler struct {
	logger  *slog.Logger
	tenancy Tenancy
}

// NewHandler creates a new tenant handler.
func NewHandler(logger *slog.Logger, tenancy Tenancy) *Handler {
	return &Handler{logger: logger, tenancy: tenancy}
}

// TenantResponse describes an organization.
type TenantResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

func tenantResponse(t *domain.Tenant) TenantResponse {
	return TenantResponse{ID: t.ID, Name: t.Name, Slug: t.Slug}
}

// actor returns the caller's membership or writes a 403.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*domain.Membership, bool) {
	m, ok := middleware.GetMembership(r.Context())
	if !ok {
		httputil.Error(w, http.StatusForbidden, "an organization membership is required")
		return nil, false
	}
	return m, true
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (*domain.Principal, bool) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.JSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "authentication required",
			"redirect": "/login",
		})
		return nil, false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		httputil.DecodeError(w, err)
		return false
	}
	return true
}

// writeError maps tenancy errors to responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenancy.ErrNameRequired),
		errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidEmail):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvitationEmailMatch):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrMembershipNotFound),
		errors.Is(err, domain.ErrTenantNotFound),
		errors.Is(err, domain.ErrInvitationNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyMember):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvitationExpired),
		errors.Is(err, domain.ErrInvitationAccepted):
		httputil.Error(w, http.StatusGone, err.Error())
	default:
		h.logger.Error("tenant request failed", "error", err, "path", r.URL.Path, "method", r.Method)
		httputil.Error(w, http.StatusInternalServerError, "request failed")
	}
}
