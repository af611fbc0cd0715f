package password

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/domain"
	"github.com/tendant/qc-inspect/pkg/ratelimit"
)

// Passwords verifies and manages password credentials.
type Passwords interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
}

// Sessions issues browser sessions.
type Sessions interface {
	IssueSession(ctx context.Context, user *domain.User, meta domain.SessionMetadata) (*domain.TokenPair, error)
	Cookies(pair *domain.TokenPair) []*http.Cookie
	ClearCookies() []*http.Cookie
}

// Verification sends and redeems emailed tokens.
type Verification interface {
	SendEmailVerification(ctx context.Context, user *domain.User, meta domain.SessionMetadata) error
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string, meta domain.SessionMetadata) error
	ResetPassword(ctx context.Context, token, password string) error
}

// Limiter counts attempts at sensitive actions.
type Limiter interface {
	Attempt(ctx context.Context, identifier string, action domain.RateLimitAction) (ratelimit.Result, error)
	Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error
}

// Handler handles password authentication endpoints.
type Handler struct {
	logger        *slog.Logger
	passwords     Passwords
	sessions      Sessions
	verification  Verification
	limiter       Limiter
	trustedHeader string
}

// NewHandler creates a new password handler.
func NewHandler(
	logger *slog.Logger,
	passwords Passwords,
	sessions Sessions,
	verification Verification,
	limiter Limiter,
	trustedHeader string,
) *Handler {
	return &Handler{
		logger:        logger,
		passwords:     passwords,
		sessions:      sessions,
		verification:  verification,
		limiter:       limiter,
		trustedHeader: trustedHeader,
	}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"`
}

// ForgotPasswordRequest asks for a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

// ResetPasswordRequest redeems a reset link.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest changes the signed-in user's password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// RedirectResponse tells the browser where to go next.
type RedirectResponse struct {
	Redirect string `json:"redirect"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// InvalidCredentialsResponse is returned for a failed login.
type InvalidCredentialsResponse struct {
	Error             string `json:"error"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// RateLimitedResponse is returned when an action's attempt limit is reached.
type RateLimitedResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

const resetRequestedMessage = "If an account exists with that email, a password reset link has been sent"

// Login handles password sign-in.
// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := h.clientID(r)
	result, ok := h.attempt(w, r, id, domain.RateLimitLogin)
	if !ok {
		return
	}

	user, err := h.passwords.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			httputil.JSON(w, http.StatusUnauthorized, InvalidCredentialsResponse{
				Error:             "invalid email or password",
				RemainingAttempts: result.Remaining,
			})
			return
		}
		h.logger.Error("login failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	if err := h.limiter.Reset(r.Context(), id, domain.RateLimitLogin); err != nil {
		h.logger.Warn("failed to reset login attempts", "error", err, "user_id", user.ID)
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.logger.Info("user signed in", "user_id", user.ID)
	httputil.JSON(w, http.StatusOK, RedirectResponse{Redirect: access.RootPath})
}

// Register creates an account and signs it in.
// POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.passwords.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "an account with that email already exists")
		case errors.Is(err, domain.ErrInvalidEmail),
			errors.Is(err, domain.ErrWeakPassword),
			errors.Is(err, domain.ErrBreachedPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	if err := h.verification.SendEmailVerification(r.Context(), user, h.meta(r)); err != nil {
		h.logger.Error("failed to send verification email", "error", err, "user_id", user.ID)
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.logger.Info("user registered", "user_id", user.ID)
	httputil.JSON(w, http.StatusCreated, RedirectResponse{Redirect: access.OnboardingPath})
}

// ForgotPassword emails a reset link. The response never reveals whether
// the address has an account.
// POST /forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, ok := h.attempt(w, r, h.clientID(r), domain.RateLimitForgotPassword); !ok {
		return
	}

	if err := h.verification.RequestPasswordReset(r.Context(), req.Email, h.meta(r)); err != nil {
		h.logger.Error("failed to send password reset", "error", err)
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: resetRequestedMessage})
}

// ResetPassword sets a new password from an emailed reset token.
// POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.verification.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, domain.ErrVerificationTokenNotFound),
			errors.Is(err, domain.ErrVerificationTokenInvalid):
			httputil.Error(w, http.StatusBadRequest, "invalid reset link")
		case errors.Is(err, domain.ErrVerificationTokenExpired):
			httputil.Error(w, http.StatusBadRequest, "reset link expired")
		case errors.Is(err, domain.ErrVerificationTokenConsumed):
			httputil.Error(w, http.StatusBadRequest, "reset link already used")
		case errors.Is(err, domain.ErrWeakPassword), errors.Is(err, domain.ErrBreachedPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("password reset failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	httputil.SetCookies(w, h.sessions.ClearCookies())
	httputil.JSON(w, http.StatusOK, RedirectResponse{Redirect: access.LoginPath})
}

// ChangePassword changes the signed-in user's password. Attempts are
// counted per account so a stolen session cannot brute force the current
// password from many addresses.
// POST /auth/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := "user:" + principal.ID.String()
	result, ok := h.attempt(w, r, id, domain.RateLimitChangePassword)
	if !ok {
		return
	}

	err := h.passwords.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.JSON(w, http.StatusUnauthorized, InvalidCredentialsResponse{
				Error:             "current password is incorrect",
				RemainingAttempts: result.Remaining,
			})
		case errors.Is(err, domain.ErrWeakPassword), errors.Is(err, domain.ErrBreachedPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("change password failed", "error", err, "user_id", principal.ID)
			httputil.Error(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	if err := h.limiter.Reset(r.Context(), id, domain.RateLimitChangePassword); err != nil {
		h.logger.Warn("failed to reset change password attempts", "error", err, "user_id", principal.ID)
	}

	// Every session was revoked, including this one.
	httputil.SetCookies(w, h.sessions.ClearCookies())
	h.logger.Info("password changed", "user_id", principal.ID)
	httputil.JSON(w, http.StatusOK, RedirectResponse{Redirect: access.LoginPath})
}

// ConfirmEmail redeems an email verification link.
// GET /auth/confirm
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
		return
	}
	if err := h.verification.VerifyEmail(r.Context(), token); err != nil {
		h.logger.Info("email confirmation failed", "error", err)
		http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/verify-success", http.StatusSeeOther)
}

// attempt counts one attempt at action and writes a 429 if the caller is
// over the limit. It reports whether the handler should continue.
func (h *Handler) attempt(w http.ResponseWriter, r *http.Request, id string, action domain.RateLimitAction) (ratelimit.Result, bool) {
	result, err := h.limiter.Attempt(r.Context(), id, action)
	if err != nil {
		h.logger.Error("rate limit attempt failed", "error", err, "action", action)
		httputil.Error(w, http.StatusInternalServerError, "request failed")
		return result, false
	}
	if !result.Allowed {
		secs := result.RetryAfterSeconds()
		h.logger.Warn("rate limit exceeded",
			"action", action,
			"identifier", id,
			"retry_after_seconds", secs,
		)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		httputil.JSON(w, http.StatusTooManyRequests, RateLimitedResponse{
			Error:             "too many attempts. please try again later",
			RetryAfterSeconds: secs,
		})
		return result, false
	}
	return result, true
}

func (h *Handler) clientID(r *http.Request) string {
	id, ok := httputil.ClientIdentifier(r, h.trustedHeader)
	if !ok {
		h.logger.Warn("no client address header; using shared rate limit bucket",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
	}
	return id
}

func (h *Handler) meta(r *http.Request) domain.SessionMetadata {
	return domain.SessionMetadata{
		IP:        httputil.RemoteIP(r, h.trustedHeader),
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *domain.User) bool {
	pair, err := h.sessions.IssueSession(r.Context(), user, h.meta(r))
	if err != nil {
		h.logger.Error("failed to issue session", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to issue session")
		return false
	}
	httputil.SetCookies(w, h.sessions.Cookies(pair))
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		httputil.DecodeError(w, err)
		return false
	}
	return true
}
