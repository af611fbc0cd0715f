package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/qc-inspect/internal/httputil"
	"github.com/tendant/qc-inspect/pkg/domain"
)

const (
	refreshTokenLen = 32

	DefaultAccessTokenTTL   = 15 * time.Minute
	DefaultRefreshTokenTTL  = 7 * 24 * time.Hour
	DefaultRefreshThreshold = 2 * time.Minute
	DefaultRotationGrace    = 30 * time.Second
)

// SessionConfig holds session configuration.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// RefreshThreshold renews a still-valid access token this close to expiry.
	RefreshThreshold time.Duration
	// RotationGrace is how long a just-rotated refresh token still
	// identifies its session, for concurrent requests that lost the race.
	RotationGrace time.Duration
	JWTSecret     []byte
	Issuer           string
	Cookie           httputil.CookieConfig
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	GetByPreviousTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	RotateTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string, expiresAt, rotatedAt time.Time) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID) error
}

// UserLookup loads user profiles.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// SessionService issues, refreshes and resolves sessions. Access tokens are
// short-lived JWTs; refresh tokens are opaque and stored hashed.
type SessionService struct {
	config   SessionConfig
	sessions SessionStore
	users    UserLookup
	now      func() time.Time
}

// NewSessionService creates a new session service.
func NewSessionService(config SessionConfig, sessions SessionStore, users UserLookup) *SessionService {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.RefreshThreshold == 0 {
		config.RefreshThreshold = DefaultRefreshThreshold
	}
	if config.RotationGrace == 0 {
		config.RotationGrace = DefaultRotationGrace
	}
	return &SessionService{
		config:   config,
		sessions: sessions,
		users:    users,
		now:      time.Now,
	}
}

// AccessTokenClaims represents the claims in an access token. Tenant and
// role are not carried; they are looked up on every request.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// IssueSession creates a session for user and returns its token pair.
func (s *SessionService) IssueSession(ctx context.Context, user *domain.User, meta domain.SessionMetadata) (*domain.TokenPair, error) {
	now := s.now()

	refreshToken, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
	}
	if meta != (domain.SessionMetadata{}) {
		session.Metadata, _ = json.Marshal(meta)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.tokenPair(user, session.ID, refreshToken, now)
}

// Refresh exchanges a refresh token for a new pair. The refresh token is
// rotated, so each one can be used once.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, *domain.User, error) {
	oldHash := HashToken(refreshToken)

	session, err := s.sessions.GetByTokenHash(ctx, oldHash)
	if err != nil {
		return nil, nil, err
	}
	if !session.IsValid() {
		if session.RevokedAt != nil {
			return nil, nil, domain.ErrSessionRevoked
		}
		return nil, nil, domain.ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}

	next, err := GenerateToken(refreshTokenLen)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if err := s.sessions.RotateTokenHash(ctx, session.ID, oldHash, HashToken(next), now.Add(s.config.RefreshTokenTTL), now); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokenPair(user, session.ID, next, now)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (s *SessionService) tokenPair(user *domain.User, sessionID uuid.UUID, refreshToken string, now time.Time) (*domain.TokenPair, error) {
	expiresAt := now.Add(s.config.AccessTokenTTL)
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.Issuer,
			ID:        sessionID.String(),
		},
		Email: user.Email,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// RevokeSession revokes a session by refresh token.
func (s *SessionService) RevokeSession(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeByTokenHash(ctx, HashToken(refreshToken))
}

// RevokeAllSessions revokes all sessions for a user.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.sessions.RevokeAllByUserID(ctx, userID)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *SessionService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.JWTSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Cookies returns the cookies that carry pair to the browser.
func (s *SessionService) Cookies(pair *domain.TokenPair) []*http.Cookie {
	return httputil.AuthCookies(s.config.Cookie, pair.AccessToken, pair.RefreshToken, s.config.AccessTokenTTL, s.config.RefreshTokenTTL)
}

// ClearCookies returns cookies that sign the browser out.
func (s *SessionService) ClearCookies() []*http.Cookie {
	return httputil.ClearedAuthCookies(s.config.Cookie)
}

// Resolution is the caller identity found on a request, plus any cookies
// the response must carry (a rotated session or a sign-out).
type Resolution struct {
	Principal *domain.Principal
	Cookies   []*http.Cookie
}

// ResolveRequest finds the principal behind the request's session cookies.
// An invalid or expired session yields no principal and clearing cookies;
// a non-nil error means the session store itself failed.
func (s *SessionService) ResolveRequest(ctx context.Context, r *http.Request) (*Resolution, error) {
	refreshToken, hasRefresh := httputil.CookieValue(r, httputil.RefreshTokenCookie)

	if access, ok := httputil.CookieValue(r, httputil.AccessTokenCookie); ok {
		if claims, err := s.ValidateAccessToken(access); err == nil {
			p, err := principalFromClaims(claims)
			if err == nil {
				res := &Resolution{Principal: p}
				if hasRefresh && claims.ExpiresAt != nil && claims.ExpiresAt.Sub(s.now()) < s.config.RefreshThreshold {
					// Best effort: the current token is still good.
					if pair, _, err := s.Refresh(ctx, refreshToken); err == nil {
						res.Cookies = s.Cookies(pair)
					}
				}
				return res, nil
			}
		}
	}

	if !hasRefresh {
		return &Resolution{}, nil
	}

	pair, user, err := s.Refresh(ctx, refreshToken)
	if errors.Is(err, domain.ErrSessionNotFound) {
		// Another request may have rotated this token moments ago. Its
		// response carries the new cookies; leave the browser's alone.
		if user, ok := s.recentlyRotated(ctx, refreshToken); ok {
			return &Resolution{Principal: user.Principal()}, nil
		}
	}
	if err != nil {
		if isSessionError(err) {
			return &Resolution{Cookies: s.ClearCookies()}, nil
		}
		return &Resolution{}, err
	}
	return &Resolution{Principal: user.Principal(), Cookies: s.Cookies(pair)}, nil
}

func (s *SessionService) recentlyRotated(ctx context.Context, refreshToken string) (*domain.User, bool) {
	session, err := s.sessions.GetByPreviousTokenHash(ctx, HashToken(refreshToken))
	if err != nil || !session.IsValid() || session.RotatedAt == nil {
		return nil, false
	}
	if s.now().Sub(*session.RotatedAt) > s.config.RotationGrace {
		return nil, false
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, false
	}
	return user, true
}

func principalFromClaims(claims *AccessTokenClaims) (*domain.Principal, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	return &domain.Principal{ID: id, Email: claims.Email}, nil
}

func isSessionError(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrSessionExpired) ||
		errors.Is(err, domain.ErrSessionRevoked) ||
		errors.Is(err, domain.ErrUserNotFound)
}
