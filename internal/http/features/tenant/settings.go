package tenant

import (
	"net/http"

	"github.com/tendant/qc-inspect/internal/httputil"
)

// RenameTenantRequest changes the organization name.
type RenameTenantRequest struct {
	Name string `json:"name" validate:"required"`
}

// GetSettings returns the caller's organization.
// GET /settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	t, err := h.tenancy.GetTenant(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tenantResponse(t))
}

// UpdateSettings renames the caller's organization.
// PATCH /settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req RenameTenantRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.tenancy.RenameTenant(r.Context(), actor, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, tenantResponse(t))
}
