package tenant

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/domain"
)

// InvitationDetails is shown to an invitee before accepting.
type InvitationDetails struct {
	TenantName string      `json:"tenant_name"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// GetInvitation shows a pending invitation. Anyone holding the link may see it.
// GET /invite/{token}
func (h *Handler) GetInvitation(w http.ResponseWriter, r *http.Request) {
	view, err := h.tenancy.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, InvitationDetails{
		TenantName: view.Tenant.Name,
		Email:      view.Invitation.Email,
		Role:       view.Invitation.Role,
		ExpiresAt:  view.Invitation.ExpiresAt,
	})
}

// AcceptInvitation joins the inviting organization. The path is public so
// the link can be opened signed out, but accepting needs a session.
// POST /invite/{token}
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	m, err := h.tenancy.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{
		"role":     m.Role,
		"redirect": access.RootPath,
	})
}
