package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
)

type fakeRevoker struct {
	revoked    []string
	revokedAll []uuid.UUID
	err        error
}

func (f *fakeRevoker) RevokeSession(ctx context.Context, refreshToken string) error {
	f.revoked = append(f.revoked, refreshToken)
	return f.err
}

func (f *fakeRevoker) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	f.revokedAll = append(f.revokedAll, userID)
	return f.err
}

func (f *fakeRevoker) ClearCookies() []*http.Cookie {
	return httputil.ClearedAuthCookies(httputil.DefaultCookieConfig())
}

func newHandler(r *fakeRevoker) *Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), r)
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		revokeErr   error
		wantRevoked int
	}{
		{name: "with session", cookie: "refresh-token", wantRevoked: 1},
		{name: "without session", wantRevoked: 0},
		{name: "already revoked", cookie: "refresh-token", revokeErr: domain.ErrSessionNotFound, wantRevoked: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			revoker := &fakeRevoker{err: tt.revokeErr}
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: httputil.RefreshTokenCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()

			newHandler(revoker).Logout(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
			}
			if len(revoker.revoked) != tt.wantRevoked {
				t.Errorf("revoked %d sessions, want %d", len(revoker.revoked), tt.wantRevoked)
			}
			cookies := rec.Result().Cookies()
			if len(cookies) != 2 {
				t.Fatalf("got %d cookies, want 2", len(cookies))
			}
			for _, c := range cookies {
				if c.MaxAge != -1 {
					t.Errorf("cookie %s MaxAge = %d, want -1", c.Name, c.MaxAge)
				}
			}
		})
	}
}

func TestLogoutAll(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newHandler(&fakeRevoker{}).LogoutAll(rec, httptest.NewRequest(http.MethodPost, "/auth/logout/all", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Status code = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("revokes every session", func(t *testing.T) {
		revoker := &fakeRevoker{}
		p := &domain.Principal{ID: uuid.New()}
		req := httptest.NewRequest(http.MethodPost, "/auth/logout/all", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p, nil))
		rec := httptest.NewRecorder()

		newHandler(revoker).LogoutAll(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
		}
		if len(revoker.revokedAll) != 1 || revoker.revokedAll[0] != p.ID {
			t.Errorf("revokedAll = %v, want [%v]", revoker.revokedAll, p.ID)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		revoker := &fakeRevoker{err: errors.New("connection refused")}
		req := httptest.NewRequest(http.MethodPost, "/auth/logout/all", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(), &domain.Principal{ID: uuid.New()}, nil))
		rec := httptest.NewRecorder()

		newHandler(revoker).LogoutAll(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("Status code = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}
