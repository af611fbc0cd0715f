package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/access"
	"github.com/tendant/qc-inspect/pkg/auth"
	"github.com/tendant/qc-inspect/pkg/domain"
)

var errDBDown = errors.New("dial tcp: connection refused")

type fakeIdentity struct {
	principal *domain.Principal
	cookies   []*http.Cookie
	err       error
	block     bool
	calls     int
}

func (f *fakeIdentity) ResolveRequest(ctx context.Context, r *http.Request) (*auth.Resolution, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return &auth.Resolution{}, ctx.Err()
	}
	if f.err != nil {
		return &auth.Resolution{}, f.err
	}
	return &auth.Resolution{Principal: f.principal, Cookies: f.cookies}, nil
}

type fakeMemberships struct {
	membership *domain.Membership
	err        error
	calls      int
}

func (f *fakeMemberships) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*domain.Membership, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.membership == nil {
		return nil, domain.ErrMembershipNotFound
	}
	return f.membership, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Ping(ctx context.Context) error { return f.err }

type gateFixture struct {
	identity    *fakeIdentity
	memberships *fakeMemberships
	health      fakeHealth
	reached     bool
	principal   *domain.Principal
	membership  *domain.Membership
}

func newGateFixture() *gateFixture {
	return &gateFixture{identity: &fakeIdentity{}, memberships: &fakeMemberships{}}
}

func (f *gateFixture) signedIn(role domain.Role) *gateFixture {
	f.identity.principal = &domain.Principal{ID: uuid.New(), Email: "inspector@example.com"}
	if role != "" {
		f.memberships.membership = &domain.Membership{
			ID:       uuid.New(),
			TenantID: uuid.New(),
			UserID:   f.identity.principal.ID,
			Role:     role,
			Status:   domain.MembershipStatusActive,
		}
	}
	return f
}

func (f *gateFixture) serve(method, target string) *httptest.ResponseRecorder {
	handler := Gate(GateConfig{
		Policy:        access.DefaultPolicy(),
		Identity:      f.identity,
		Memberships:   f.memberships,
		Health:        f.health,
		LookupTimeout: 50 * time.Millisecond,
		Logger:        discardLogger(),
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.reached = true
		f.principal, _ = GetPrincipal(r.Context())
		f.membership, _ = GetMembership(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestGate_Redirects(t *testing.T) {
	tests := []struct {
		name       string
		role       domain.Role
		signedIn   bool
		method     string
		path       string
		wantStatus int
		wantTarget string
	}{
		{name: "anonymous protected page", method: "GET", path: "/team", wantStatus: http.StatusTemporaryRedirect, wantTarget: "/login"},
		{name: "anonymous form post", method: "POST", path: "/team/invitations", wantStatus: http.StatusSeeOther, wantTarget: "/login"},
		{name: "anonymous root", method: "GET", path: "/", wantStatus: http.StatusTemporaryRedirect, wantTarget: "/login"},
		{name: "anonymous login page", method: "GET", path: "/login", wantStatus: http.StatusOK},
		{name: "anonymous invite link", method: "GET", path: "/invite/abc", wantStatus: http.StatusOK},
		{name: "no membership", signedIn: true, method: "GET", path: "/team", wantStatus: http.StatusTemporaryRedirect, wantTarget: "/onboarding"},
		{name: "no membership onboarding", signedIn: true, method: "GET", path: "/onboarding", wantStatus: http.StatusOK},
		{name: "worker on admin area", signedIn: true, role: domain.RoleWorker, method: "GET", path: "/team", wantStatus: http.StatusTemporaryRedirect, wantTarget: "/unauthorized"},
		{name: "manager on admin area", signedIn: true, role: domain.RoleManager, method: "GET", path: "/settings", wantStatus: http.StatusOK},
		{name: "signed in on login", signedIn: true, role: domain.RoleOwner, method: "GET", path: "/login", wantStatus: http.StatusTemporaryRedirect, wantTarget: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture()
			if tt.signedIn {
				f.signedIn(tt.role)
			}

			w := f.serve(tt.method, tt.path)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantTarget != "" {
				assert.Equal(t, tt.wantTarget, w.Header().Get("Location"))
				assert.False(t, f.reached, "handler must not run on redirect")
			} else {
				assert.True(t, f.reached)
			}
		})
	}
}

func TestGate_BypassSkipsLookups(t *testing.T) {
	for _, path := range []string{"/static/app.css", "/favicon.ico", "/healthz"} {
		f := newGateFixture()
		w := f.serve("GET", path)

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Zero(t, f.identity.calls, path)
	}
}

func TestGate_StoresIdentityInContext(t *testing.T) {
	f := newGateFixture().signedIn(domain.RoleOwner)

	w := f.serve("GET", "/team")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.principal)
	require.NotNil(t, f.membership)
	assert.Equal(t, f.identity.principal.ID, f.principal.ID)
	assert.Equal(t, domain.RoleOwner, f.membership.Role)
}

func TestGate_MembershipSkippedWithoutPrincipal(t *testing.T) {
	f := newGateFixture()
	f.serve("GET", "/team")

	assert.Zero(t, f.memberships.calls)
}

func TestGate_WritesRefreshedCookies(t *testing.T) {
	refreshed := httputil.AuthCookies(httputil.DefaultCookieConfig(), "new-access", "new-refresh", time.Minute, time.Hour)

	t.Run("pass through", func(t *testing.T) {
		f := newGateFixture().signedIn(domain.RoleWorker)
		f.identity.cookies = refreshed

		w := f.serve("GET", "/inspections")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, w.Result().Cookies(), 2)
	})

	t.Run("redirect", func(t *testing.T) {
		f := newGateFixture().signedIn("")
		f.identity.cookies = refreshed

		w := f.serve("GET", "/team")

		assert.Equal(t, "/onboarding", w.Header().Get("Location"))
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 2)
		assert.Equal(t, "new-access", cookies[0].Value)
	})
}

func TestGate_LookupFailures(t *testing.T) {
	t.Run("identity error with healthy database fails closed", func(t *testing.T) {
		f := newGateFixture()
		f.identity.err = errDBDown

		w := f.serve("GET", "/team")

		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("identity error with database down", func(t *testing.T) {
		f := newGateFixture()
		f.identity.err = errDBDown
		f.health.err = errDBDown

		w := f.serve("GET", "/team")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.False(t, f.reached)
	})

	t.Run("membership error with healthy database fails closed", func(t *testing.T) {
		f := newGateFixture().signedIn(domain.RoleOwner)
		f.memberships.err = errDBDown

		w := f.serve("GET", "/team")

		assert.Equal(t, "/onboarding", w.Header().Get("Location"))
	})

	t.Run("membership error with database down", func(t *testing.T) {
		f := newGateFixture().signedIn(domain.RoleOwner)
		f.memberships.err = errDBDown
		f.health.err = errDBDown

		w := f.serve("GET", "/")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("missing membership is not a failure", func(t *testing.T) {
		f := newGateFixture().signedIn("")
		f.health.err = errDBDown

		w := f.serve("GET", "/team")

		assert.Equal(t, "/onboarding", w.Header().Get("Location"))
	})

	t.Run("public path with database down", func(t *testing.T) {
		f := newGateFixture()
		f.identity.err = errDBDown
		f.health.err = errDBDown

		w := f.serve("GET", "/login")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("slow identity lookup times out", func(t *testing.T) {
		f := newGateFixture()
		f.identity.block = true

		start := time.Now()
		w := f.serve("GET", "/team")

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})
}

func TestRedirectStatus(t *testing.T) {
	assert.Equal(t, http.StatusTemporaryRedirect, redirectStatus(http.MethodGet))
	assert.Equal(t, http.StatusTemporaryRedirect, redirectStatus(http.MethodHead))
	assert.Equal(t, http.StatusSeeOther, redirectStatus(http.MethodPost))
	assert.Equal(t, http.StatusSeeOther, redirectStatus(http.MethodDelete))
}
