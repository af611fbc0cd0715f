package pages

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// TenantReader loads the caller's organization.
type TenantReader interface {
	GetTenant(ctx context.Context, actor *domain.Membership) (*domain.Tenant, error)
}

// Handler renders the server-side pages.
type Handler struct {
	logger       *slog.Logger
	templates    *template.Template
	tenants      TenantReader
	requirements string
}

// NewHandler parses the embedded templates. requirements is the password
// policy shown on forms that set a password.
func NewHandler(logger *slog.Logger, tenants TenantReader, requirements string) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		logger:       logger,
		templates:    tmpl,
		tenants:      tenants,
		requirements: requirements,
	}, nil
}

// PageData holds data for template rendering.
type PageData struct {
	Title        string
	Token        string
	Requirements string

	// Dashboard
	TenantName string
	Email      string
	Role       domain.Role
	Admin      bool
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", PageData{Title: "Sign in"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "register.html", PageData{Title: "Create account", Requirements: h.requirements})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "forgot-password.html", PageData{Title: "Reset password"})
}

// ResetPassword renders the form behind an emailed reset link.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "reset-password.html", PageData{
		Title:        "Choose a new password",
		Token:        r.URL.Query().Get("token"),
		Requirements: h.requirements,
	})
}

func (h *Handler) VerifySuccess(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "verify-success.html", PageData{Title: "Email confirmed"})
}

// Unauthorized is where callers land when their role cannot open a page.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusForbidden, "unauthorized.html", PageData{Title: "Not allowed"})
}

func (h *Handler) Onboarding(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "onboarding.html", PageData{Title: "Set up your organization"})
}

// Dashboard is the landing page for members.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.GetPrincipal(r.Context())
	m, ok := middleware.GetMembership(r.Context())
	if p == nil || !ok {
		http.Redirect(w, r, "/onboarding", http.StatusTemporaryRedirect)
		return
	}

	t, err := h.tenants.GetTenant(r.Context(), m)
	if err != nil {
		h.logger.Error("failed to load tenant", "error", err, "tenant_id", m.TenantID)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.render(w, http.StatusOK, "dashboard.html", PageData{
		Title:      "Dashboard",
		TenantName: t.Name,
		Email:      p.Email,
		Role:       m.Role,
		Admin:      m.Role.IsAdmin(),
	})
}

// Static serves the embedded assets under /static/.
func (h *Handler) Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func (h *Handler) render(w http.ResponseWriter, status int, tmpl string, data PageData) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		h.logger.Error("failed to render page", "error", err, "template", tmpl)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
