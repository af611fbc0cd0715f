package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
)

// Revoker ends sessions.
type Revoker interface {
	RevokeSession(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
	ClearCookies() []*http.Cookie
}

// Handler handles session endpoints.
type Handler struct {
	logger   *slog.Logger
	sessions Revoker
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, sessions Revoker) *Handler {
	return &Handler{logger: logger, sessions: sessions}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout/all", h.LogoutAll)
}

// Logout revokes the current session. Cookies are cleared even when the
// session is already gone.
// POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := httputil.CookieValue(r, httputil.RefreshTokenCookie); ok {
		if err := h.sessions.RevokeSession(r.Context(), token); err != nil {
			h.logger.Warn("failed to revoke session", "error", err)
		}
	}
	httputil.SetCookies(w, h.sessions.ClearCookies())
	httputil.JSON(w, http.StatusOK, map[string]string{"redirect": access.LoginPath})
}

// LogoutAll revokes all sessions for the current user.
// POST /auth/logout/all
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.sessions.RevokeAllSessions(r.Context(), principal.ID); err != nil {
		h.logger.Error("failed to revoke sessions", "error", err, "user_id", principal.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	httputil.SetCookies(w, h.sessions.ClearCookies())
	httputil.JSON(w, http.StatusOK, map[string]string{"redirect": access.LoginPath})
}
