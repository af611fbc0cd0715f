package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tendant/qc-inspect/internal/config"
	"github.com/tendant/qc-inspect/internal/http/features/me"
	"github.com/tendant/qc-inspect/internal/http/features/pages"
	"github.com/tendant/qc-inspect/internal/http/features/password"
	"github.com/tendant/qc-inspect/internal/http/features/session"
	"github.com/tendant/qc-inspect/internal/http/features/tenant"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/ratelimit"
	"github.com/tendant/qc-inspect/pkg/tenancy"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger              *slog.Logger
	Policy              *access.Policy
	PasswordService     *auth.PasswordService
	SessionService      *auth.SessionService
	VerificationService *auth.VerificationService
	PasswordPolicy      *auth.PasswordPolicy
	TenancyService      *tenancy.Service
	Limiter             *ratelimit.Limiter
	Memberships         middleware.MembershipStore
	Health              middleware.HealthChecker
	GateConfig          config.GateConfig
	RateLimitConfig     config.RateLimitConfig
	SecurityHeaders     config.SecurityHeadersConfig
	MaxBodyBytes        int64
	CORSAllowedOrigins  []string
}

// NewRouter creates a new HTTP router with all routes registered. Every
// route except static assets and health checks sits behind the access gate.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.RequestSizeLimit(cfg.MaxBodyBytes))
	r.Use(middleware.Gate(middleware.GateConfig{
		Policy:        cfg.Policy,
		Identity:      cfg.SessionService,
		Memberships:   cfg.Memberships,
		Health:        cfg.Health,
		LookupTimeout: cfg.GateConfig.LookupTimeout,
		Logger:        cfg.Logger,
	}))

	r.Get("/healthz", healthHandler(cfg.Health))
	r.Get("/health", healthHandler(cfg.Health))

	throttles := middleware.CreateThrottles(cfg.RateLimitConfig, cfg.Logger)

	passwordHandler := password.NewHandler(
		cfg.Logger,
		cfg.PasswordService,
		cfg.SessionService,
		cfg.VerificationService,
		cfg.Limiter,
		cfg.RateLimitConfig.TrustedHeader,
	)
	passwordHandler.RegisterRoutes(r, throttles["auth"])

	session.NewHandler(cfg.Logger, cfg.SessionService).RegisterRoutes(r)
	me.NewHandler(cfg.Logger, cfg.PasswordService).RegisterRoutes(r)

	tenant.NewHandler(cfg.Logger, cfg.TenancyService).RegisterRoutes(r, throttles["mutations"], throttles["invites"])

	var requirements string
	if cfg.PasswordPolicy != nil {
		requirements = cfg.PasswordPolicy.Requirements()
	}
	pagesHandler, err := pages.NewHandler(cfg.Logger, cfg.TenancyService, requirements)
	if err != nil {
		return nil, err
	}
	pagesHandler.RegisterRoutes(r)

	return r, nil
}

func healthHandler(health middleware.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), middleware.DefaultLookupTimeout)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
