package tenant

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers tenant routes. mutations and invites throttle
// writes; either may be a no-op.
func (h *Handler) RegisterRoutes(r chi.Router, mutations, invites func(http.Handler) http.Handler) {
	r.With(mutations).Post("/onboarding", h.CreateTenant)

	r.Get("/settings", h.GetSettings)
	r.With(mutations).Patch("/settings", h.UpdateSettings)

	r.Get("/team/members", h.ListMembers)
	r.With(mutations).Patch("/team/members/{id}", h.UpdateMember)
	r.With(mutations).Delete("/team/members/{id}", h.DeactivateMember)
	r.With(invites).Post("/team/invitations", h.Invite)

	r.Get("/invite/{token}", h.GetInvitation)
	r.With(invites).Post("/invite/{token}", h.AcceptInvitation)
}
