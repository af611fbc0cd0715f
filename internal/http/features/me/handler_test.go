package me

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-inspect/internal/http/middleware"
	"github.com/tendant/qc-inspect/pkg/domain"
)

type fakeUsers struct {
	user *domain.User
	err  error
}

func (f fakeUsers) GetUserByID(context.Context, uuid.UUID) (*domain.User, error) {
	return f.user, f.err
}

func getMe(h *Handler, p *domain.Principal, m *domain.Membership) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), p, m))
	rec := httptest.NewRecorder()
	h.GetMe(rec, req)
	return rec
}

func TestGetMe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	name := "Inspector"
	user := &domain.User{ID: uuid.New(), Email: "qc@example.com", EmailVerified: true, Name: &name}
	principal := &domain.Principal{ID: user.ID, Email: user.Email}

	t.Run("with membership", func(t *testing.T) {
		tenantID := uuid.New()
		m := &domain.Membership{TenantID: tenantID, UserID: user.ID, Role: domain.RoleWorker, Status: domain.MembershipStatusActive}
		rec := getMe(NewHandler(logger, fakeUsers{user: user}), principal, m)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp UserResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "qc@example.com", resp.Email)
		require.NotNil(t, resp.Membership)
		assert.Equal(t, tenantID.String(), resp.Membership.TenantID)
		assert.Equal(t, "worker", resp.Membership.Role)
	})

	t.Run("without membership", func(t *testing.T) {
		rec := getMe(NewHandler(logger, fakeUsers{user: user}), principal, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "membership")
	})

	t.Run("signed out", func(t *testing.T) {
		rec := getMe(NewHandler(logger, fakeUsers{user: user}), nil, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)
	})

	t.Run("user deleted", func(t *testing.T) {
		rec := getMe(NewHandler(logger, fakeUsers{err: domain.ErrUserNotFound}), principal, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		rec := getMe(NewHandler(logger, fakeUsers{err: errors.New("boom")}), principal, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
