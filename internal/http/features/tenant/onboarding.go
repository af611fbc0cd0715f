package tenant

import (
	"net/http"

	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
)

// CreateTenantRequest names a new organization.
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateTenant creates an organization with the caller as owner.
// POST /onboarding
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CreateTenantRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, _, err := h.tenancy.CreateTenant(r.Context(), p.ID, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, map[string]any{
		"tenant":   tenantResponse(t),
		"redirect": access.RootPath,
	})
}
