package httputil

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieConfig holds cookie configuration.
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns default cookie configuration.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// AuthCookies builds the HttpOnly access and refresh cookies.
func AuthCookies(cfg CookieConfig, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) []*http.Cookie {
	return []*http.Cookie{
		cfg.cookie(AccessTokenCookie, accessToken, int(accessTTL.Seconds())),
		cfg.cookie(RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds())),
	}
}

// ClearedAuthCookies builds cookies that delete both auth cookies.
func ClearedAuthCookies(cfg CookieConfig) []*http.Cookie {
	return []*http.Cookie{
		cfg.cookie(AccessTokenCookie, "", -1),
		cfg.cookie(RefreshTokenCookie, "", -1),
	}
}

// SetCookies writes cookies to the response headers.
func SetCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

// CookieValue returns the named cookie's value if it is present and non-empty.
func CookieValue(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
