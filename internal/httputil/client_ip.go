package httputil

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when no client address header is
// present. All such requests share one rate limit bucket.
const UnknownClient = "unknown"

// DefaultTrustedHeader is set by the edge proxy to the connecting address.
const DefaultTrustedHeader = "CF-Connecting-IP"

// ClientIdentifier derives the rate limit identifier for a request. Headers
// are checked in order: trustedHeader, the first X-Forwarded-For entry,
// X-Real-IP. The values are only as trustworthy as the proxy in front of the
// service; a client reaching the service directly can choose them. ok is
// false when no header was usable.
func ClientIdentifier(r *http.Request, trustedHeader string) (id string, ok bool) {
	if trustedHeader != "" {
		if v := cleanIP(r.Header.Get(trustedHeader)); v != "" {
			return v, true
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if v := cleanIP(first); v != "" {
			return v, true
		}
	}
	if v := cleanIP(r.Header.Get("X-Real-IP")); v != "" {
		return v, true
	}
	return UnknownClient, false
}

// RemoteIP returns the request's best known client address for logging.
func RemoteIP(r *http.Request, trustedHeader string) string {
	if id, ok := ClientIdentifier(r, trustedHeader); ok {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cleanIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	// Keep non-address values (e.g. obfuscated identifiers) but bound them.
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}
