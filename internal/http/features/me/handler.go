package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
)

// Users loads the signed-in user's profile.
type Users interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Handler handles the current-user endpoint.
type Handler struct {
	logger *slog.Logger
	users  Users
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, users Users) *Handler {
	return &Handler{logger: logger, users: users}
}

// UserResponse represents the user profile response.
type UserResponse struct {
	ID            string              `json:"id"`
	Email         string              `json:"email"`
	EmailVerified bool                `json:"email_verified"`
	Name          *string             `json:"name,omitempty"`
	Membership    *MembershipResponse `json:"membership,omitempty"`
}

type MembershipResponse struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// GetMe returns the current user's profile and active membership.
// GET /me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "redirect": "/login"})
		return
	}

	user, err := h.users.GetUserByID(r.Context(), principal.ID)
	if errors.Is(err, domain.ErrUserNotFound) {
		httputil.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load user", "error", err, "user_id", principal.ID)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := UserResponse{
		ID:            user.ID.String(),
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.Name,
	}
	if m, ok := middleware.GetMembership(r.Context()); ok {
		resp.Membership = &MembershipResponse{TenantID: m.TenantID.String(), Role: string(m.Role)}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
}
