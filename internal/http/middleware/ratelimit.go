package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/qc-inspect/internal/config"
	"github.com/tendant/qc-inspect/internal/httputil"
)

// ThrottleConfig holds a coarse request limit for a group of routes.
type ThrottleConfig struct {
	Requests      int
	Window        time.Duration
	TrustedHeader string
	Logger        *slog.Logger
}

// Throttle creates a per-client request limiter. Clients are keyed the same
// way as the attempt limiter, so requests without any client header share
// the "unknown" bucket.
func Throttle(cfg ThrottleConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			id, _ := httputil.ClientIdentifier(r, cfg.TrustedHeader)
			return id, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("request throttled",
					"client", httputil.RemoteIP(r, cfg.TrustedHeader),
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "too many requests. please try again later")
		}),
	)
}

// NoThrottle returns a no-op middleware when throttling is disabled.
func NoThrottle() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// CreateThrottles builds the route-group throttles from configuration.
// "auth" covers the password form posts; "mutations" covers onboarding, team
// and settings writes; "invites" covers invitation creation and acceptance.
func CreateThrottles(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoThrottle()
		return map[string]func(http.Handler) http.Handler{
			"auth":      noOp,
			"mutations": noOp,
			"invites":   noOp,
		}
	}

	return map[string]func(http.Handler) http.Handler{
		"auth": Throttle(ThrottleConfig{
			Requests:      cfg.AuthPerMinute,
			Window:        time.Minute,
			TrustedHeader: cfg.TrustedHeader,
			Logger:        logger,
		}),
		"mutations": Throttle(ThrottleConfig{
			Requests:      cfg.MutationsPerMinute,
			Window:        time.Minute,
			TrustedHeader: cfg.TrustedHeader,
			Logger:        logger,
		}),
		"invites": Throttle(ThrottleConfig{
			Requests:      cfg.InvitesPerHour,
			Window:        time.Hour,
			TrustedHeader: cfg.TrustedHeader,
			Logger:        logger,
		}),
	}
}
