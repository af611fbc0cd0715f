package password

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers password authentication routes. throttle guards
// the form posts and may be a no-op; the confirmation link is not throttled.
func (h *Handler) RegisterRoutes(r chi.Router, throttle func(http.Handler) http.Handler) {
	r.With(throttle).Post("/login", h.Login)
	r.With(throttle).Post("/register", h.Register)
	r.With(throttle).Post("/forgot-password", h.ForgotPassword)
	r.With(throttle).Post("/auth/reset-password", h.ResetPassword)
	r.With(throttle).Post("/auth/password", h.ChangePassword)
	r.Get("/auth/confirm", h.ConfirmEmail)
}
