package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/domain"
)

// DefaultLookupTimeout bounds each identity and membership lookup.
const DefaultLookupTimeout = 5 * time.Second

// IdentityProvider resolves the caller behind a request's session cookies.
type IdentityProvider interface {
	ResolveRequest(ctx context.Context, r *http.Request) (*auth.Resolution, error)
}

// MembershipStore finds a user's active membership.
type MembershipStore interface {
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Membership, error)
}

// HealthChecker probes the backing database.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// GateConfig configures the access gate.
type GateConfig struct {
	Policy        *access.Policy
	Identity      IdentityProvider
	Memberships   MembershipStore
	Health        HealthChecker
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

// Gate evaluates every request against the access policy before any handler
// runs. Lookup failures are treated as "no principal" or "no membership";
// when a lookup fails and the database is also unreachable the request is
// answered with 503 instead.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	if cfg.Policy == nil {
		cfg.Policy = access.DefaultPolicy()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &gate{cfg: cfg}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.cfg.Policy.IsBypassed(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			res, membership, lookupErr := g.resolve(r)
			if lookupErr != nil && g.storeUnavailable(r.Context()) {
				g.cfg.Logger.Error("access gate: store unavailable",
					"path", r.URL.Path,
					"error", lookupErr,
				)
				w.Header().Set("Retry-After", "5")
				httputil.Error(w, http.StatusServiceUnavailable, "service temporarily unavailable")
				return
			}

			decision := g.cfg.Policy.Evaluate(r.URL.Path, res.Principal, membership)
			httputil.SetCookies(w, res.Cookies)

			if decision.Redirect {
				http.Redirect(w, r, decision.Target, redirectStatus(r.Method))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), res.Principal, membership)))
		})
	}
}

type gate struct {
	cfg GateConfig
}

// resolve looks up the caller and their membership. The returned resolution
// is never nil. err is the first infrastructure failure encountered.
func (g *gate) resolve(r *http.Request) (*auth.Resolution, *domain.Membership, error) {
	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.LookupTimeout)
	res, err := g.cfg.Identity.ResolveRequest(ctx, r)
	cancel()
	if res == nil {
		res = &auth.Resolution{}
	}
	if err != nil {
		g.cfg.Logger.Warn("access gate: identity lookup failed",
			"path", r.URL.Path,
			"error", err,
		)
		res.Principal = nil
		return res, nil, err
	}
	if res.Principal == nil {
		return res, nil, nil
	}

	ctx, cancel = context.WithTimeout(r.Context(), g.cfg.LookupTimeout)
	defer cancel()
	m, err := g.cfg.Memberships.GetActiveByUserID(ctx, res.Principal.ID)
	if err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			return res, nil, nil
		}
		g.cfg.Logger.Warn("access gate: membership lookup failed",
			"path", r.URL.Path,
			"user_id", res.Principal.ID,
			"error", err,
		)
		return res, nil, err
	}
	return res, m, nil
}

func (g *gate) storeUnavailable(ctx context.Context) bool {
	if g.cfg.Health == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.LookupTimeout)
	defer cancel()
	return g.cfg.Health.Ping(ctx) != nil
}

// redirectStatus preserves the method for safe requests and turns anything
// else into a GET on the target.
func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusTemporaryRedirect
	}
	return http.StatusSeeOther
}
