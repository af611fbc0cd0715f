package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
)

type fakeSessions struct {
	mu     sync.Mutex
	byHash map[string]*domain.Session
	err    error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byHash: map[string]*domain.Session{}}
}

func (f *fakeSessions) Create(ctx context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[s.TokenHash] = s
	return nil
}

func (f *fakeSessions) GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.byHash[hash]
	if !ok || s.RevokedAt != nil {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) GetByPreviousTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byHash {
		if s.PreviousTokenHash != nil && *s.PreviousTokenHash == hash && s.RevokedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (f *fakeSessions) RotateTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string, expiresAt, rotatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byHash[oldHash]
	if !ok || s.ID != id {
		return domain.ErrSessionNotFound
	}
	delete(f.byHash, oldHash)
	s.TokenHash = newHash
	s.PreviousTokenHash = &oldHash
	s.RotatedAt = &rotatedAt
	s.ExpiresAt = expiresAt
	f.byHash[newHash] = s
	return nil
}

func (f *fakeSessions) RevokeByTokenHash(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byHash[hash]; ok {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

func (f *fakeSessions) RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, s := range f.byHash {
		if s.UserID == userID {
			s.RevokedAt = &now
		}
	}
	return nil
}

type fakeUsers map[uuid.UUID]*domain.User

func (f fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func newTestSessionService(t *testing.T) (*SessionService, *fakeSessions, *domain.User) {
	t.Helper()
	user := &domain.User{ID: uuid.New(), Email: "inspector@example.com"}
	store := newFakeSessions()
	svc := NewSessionService(SessionConfig{
		JWTSecret: []byte("test-secret"),
		Issuer:    "qc-inspect",
		Cookie:    httputil.DefaultCookieConfig(),
	}, store, fakeUsers{user.ID: user})
	return svc, store, user
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	svc, _, user := newTestSessionService(t)

	pair, err := svc.IssueSession(context.Background(), user, domain.SessionMetadata{IP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != user.ID.String() || claims.Email != user.Email {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := svc.ValidateAccessToken(pair.AccessToken + "x"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("tampered token error = %v, want ErrInvalidToken", err)
	}
}

func TestSessionService_RefreshRotates(t *testing.T) {
	svc, _, user := newTestSessionService(t)
	ctx := context.Background()

	pair, err := svc.IssueSession(ctx, user, domain.SessionMetadata{})
	if err != nil {
		t.Fatal(err)
	}

	next, got, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Refresh() user = %v, want %v", got.ID, user.ID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("reusing old refresh token error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionService_ResolveRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("no cookies", func(t *testing.T) {
		svc, _, _ := newTestSessionService(t)
		res, err := svc.ResolveRequest(ctx, requestWithCookies())
		if err != nil || res.Principal != nil || len(res.Cookies) != 0 {
			t.Fatalf("ResolveRequest() = %+v, %v", res, err)
		}
	})

	t.Run("valid access token", func(t *testing.T) {
		svc, _, user := newTestSessionService(t)
		pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
		cookies := svc.Cookies(pair)

		res, err := svc.ResolveRequest(ctx, requestWithCookies(cookies...))
		if err != nil {
			t.Fatal(err)
		}
		if res.Principal == nil || res.Principal.ID != user.ID {
			t.Fatalf("Principal = %+v, want %v", res.Principal, user.ID)
		}
		if len(res.Cookies) != 0 {
			t.Errorf("fresh token should not be refreshed, got %d cookies", len(res.Cookies))
		}
	})

	t.Run("expired access token refreshes", func(t *testing.T) {
		svc, _, user := newTestSessionService(t)
		pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
		svc.now = func() time.Time { return time.Now().Add(time.Hour) }

		res, err := svc.ResolveRequest(ctx, requestWithCookies(svc.Cookies(pair)...))
		if err != nil {
			t.Fatal(err)
		}
		if res.Principal == nil || res.Principal.ID != user.ID {
			t.Fatalf("Principal = %+v", res.Principal)
		}
		if len(res.Cookies) != 2 || res.Cookies[1].Value == pair.RefreshToken || res.Cookies[1].MaxAge <= 0 {
			t.Errorf("expected rotated session cookies, got %+v", res.Cookies)
		}
	})

	t.Run("near expiry refreshes proactively", func(t *testing.T) {
		svc, _, user := newTestSessionService(t)
		pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
		svc.now = func() time.Time { return time.Now().Add(DefaultAccessTokenTTL - time.Minute) }

		res, err := svc.ResolveRequest(ctx, requestWithCookies(svc.Cookies(pair)...))
		if err != nil {
			t.Fatal(err)
		}
		if res.Principal == nil || len(res.Cookies) != 2 {
			t.Fatalf("ResolveRequest() = %+v", res)
		}
	})

	t.Run("concurrent refresh keeps the session", func(t *testing.T) {
		svc, _, user := newTestSessionService(t)
		pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
		later := time.Now().Add(20 * time.Minute)
		svc.now = func() time.Time { return later }
		stale := svc.Cookies(pair)

		first, err := svc.ResolveRequest(ctx, requestWithCookies(stale...))
		if err != nil || first.Principal == nil || len(first.Cookies) != 2 {
			t.Fatalf("first ResolveRequest() = %+v, %v", first, err)
		}

		second, err := svc.ResolveRequest(ctx, requestWithCookies(stale...))
		if err != nil {
			t.Fatal(err)
		}
		if second.Principal == nil || second.Principal.ID != user.ID {
			t.Fatalf("second request lost its principal: %+v", second)
		}
		if len(second.Cookies) != 0 {
			t.Errorf("second request must not touch cookies, got %+v", second.Cookies)
		}

		svc.now = func() time.Time { return later.Add(DefaultRotationGrace + time.Second) }
		replay, err := svc.ResolveRequest(ctx, requestWithCookies(stale...))
		if err != nil {
			t.Fatal(err)
		}
		if replay.Principal != nil {
			t.Error("replayed refresh token resolved after the grace period")
		}
		if len(replay.Cookies) != 2 || replay.Cookies[0].MaxAge != -1 {
			t.Errorf("expected clearing cookies, got %+v", replay.Cookies)
		}
	})

	t.Run("revoked rotation is not honored", func(t *testing.T) {
		svc, store, user := newTestSessionService(t)
		pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
		svc.now = func() time.Time { return time.Now().Add(20 * time.Minute) }
		stale := svc.Cookies(pair)

		if _, err := svc.ResolveRequest(ctx, requestWithCookies(stale...)); err != nil {
			t.Fatal(err)
		}
		if err := store.RevokeAllByUserID(ctx, user.ID); err != nil {
			t.Fatal(err)
		}

		res, err := svc.ResolveRequest(ctx, requestWithCookies(stale...))
		if err != nil {
			t.Fatal(err)
		}
		if res.Principal != nil || len(res.Cookies) != 2 {
			t.Errorf("ResolveRequest() = %+v, want signed out", res)
		}
	})

	t.Run("unknown refresh token clears cookies", func(t *testing.T) {
		svc, _, _ := newTestSessionService(t)
		r := requestWithCookies(&http.Cookie{Name: httputil.RefreshTokenCookie, Value: "bogus"})

		res, err := svc.ResolveRequest(ctx, r)
		if err != nil {
			t.Fatal(err)
		}
		if res.Principal != nil {
			t.Error("unexpected principal")
		}
		if len(res.Cookies) != 2 || res.Cookies[0].MaxAge != -1 {
			t.Errorf("expected clearing cookies, got %+v", res.Cookies)
		}
	})

	t.Run("store failure is reported", func(t *testing.T) {
		svc, store, _ := newTestSessionService(t)
		store.err = errors.New("connection refused")
		r := requestWithCookies(&http.Cookie{Name: httputil.RefreshTokenCookie, Value: "anything"})

		res, err := svc.ResolveRequest(ctx, r)
		if err == nil {
			t.Fatal("expected error")
		}
		if res == nil || res.Principal != nil {
			t.Errorf("ResolveRequest() = %+v, want empty resolution", res)
		}
	})
}

func TestSessionService_RevokeAll(t *testing.T) {
	svc, _, user := newTestSessionService(t)
	ctx := context.Background()

	pair, _ := svc.IssueSession(ctx, user, domain.SessionMetadata{})
	if err := svc.RevokeAllSessions(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Error("revoked session refreshed")
	}
}
