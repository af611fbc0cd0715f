package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tendant/qc-inspect/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	cfg := config.SecurityHeadersConfig{
		Enabled:            true,
		CSP:                "default-src 'self'",
		HSTSMaxAge:         31536000,
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		PermissionsPolicy:  "geolocation=()",
	}
	handler := SecurityHeaders(cfg)(okHandler())

	req := httptest.NewRequest("GET", "/team", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	want := map[string]string{
		"Content-Security-Policy":   cfg.CSP,
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Frame-Options":           cfg.FrameOptions,
		"X-Content-Type-Options":    cfg.ContentTypeOptions,
		"Referrer-Policy":           cfg.ReferrerPolicy,
		"Permissions-Policy":        cfg.PermissionsPolicy,
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestSecurityHeaders_NoHSTSOverPlainHTTP(t *testing.T) {
	handler := SecurityHeaders(config.SecurityHeadersConfig{Enabled: true, HSTSMaxAge: 600})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS should not be sent over plain HTTP, got %q", got)
	}
}

func TestSecurityHeaders_Disabled(t *testing.T) {
	cfg := config.SecurityHeadersConfig{
		Enabled: false,
		CSP:     "default-src 'self'",
	}
	handler := SecurityHeaders(cfg)(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("CSP header should not be set when disabled, got %q", got)
	}
}

func TestSecurityHeaders_EmptyValuesSkipped(t *testing.T) {
	handler := SecurityHeaders(config.SecurityHeadersConfig{Enabled: true, FrameOptions: "DENY"})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if _, ok := w.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP should not produce a header")
	}
}
