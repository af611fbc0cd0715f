package pages

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Handle("/static/*", h.Static())

	r.Get("/", h.Dashboard)
	r.Get("/login", h.Login)
	r.Get("/register", h.Register)
	r.Get("/forgot-password", h.ForgotPassword)
	r.Get("/auth/reset-password", h.ResetPassword)
	r.Get("/verify-success", h.VerifySuccess)
	r.Get("/unauthorized", h.Unauthorized)
	r.Get("/onboarding", h.Onboarding)
}
