// Package access decides, per request path, whether a caller may proceed or
// must be redirected. Decisions depend only on the path, the resolved
// principal and the caller's active membership, so they can be evaluated
// repeatedly without side effects.
package access

import (
	"path"
	"strings"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// Redirect targets. Client code and tests key off these literals.
const (
	RootPath         = "/"
	LoginPath        = "/login"
	RegisterPath     = "/register"
	OnboardingPath   = "/onboarding"
	UnauthorizedPath = "/unauthorized"
)

// RouteClass is the classification of a request path.
type RouteClass int

const (
	ClassProtected RouteClass = iota
	ClassPublic
	ClassAuthOnly
	ClassAdmin
	ClassRoot
)

func (c RouteClass) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassAuthOnly:
		return "auth-only"
	case ClassAdmin:
		return "admin-restricted"
	case ClassRoot:
		return "root-dashboard"
	default:
		return "general-protected"
	}
}

// RoleRule restricts a path prefix to a set of roles.
type RoleRule struct {
	Prefix string
	Roles  []domain.Role
}

func (r RoleRule) permits(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Policy holds the route tables the gate evaluates against.
//
// Prefixes ending in "/" match anything below them. Other prefixes match the
// exact path or any path below it ("/team" matches "/team/x" but not "/teams").
type Policy struct {
	Name string

	// BypassPrefixes are never gated (static files, health checks).
	// Paths whose last segment has a file extension are bypassed as well.
	BypassPrefixes []string

	PublicPaths    []string
	PublicPrefixes []string

	// AuthOnlyPaths are public, but authenticated callers are sent away.
	AuthOnlyPaths []string

	RoleRules []RoleRule

	// RoleHomes, when set, sends callers to a role-specific area instead of
	// "/" (auth-only paths) or "/unauthorized" (denied role). Legacy only.
	RoleHomes map[domain.Role]string
}

// DefaultPolicy returns the multi-tenant owner/manager/worker policy.
func DefaultPolicy() *Policy {
	admins := []domain.Role{domain.RoleOwner, domain.RoleManager}
	return &Policy{
		Name:           "default",
		BypassPrefixes: []string{"/static/", "/assets/", "/_internal/", "/healthz", "/health"},
		PublicPaths: []string{
			LoginPath,
			RegisterPath,
			"/forgot-password",
			"/verify-success",
			UnauthorizedPath,
		},
		PublicPrefixes: []string{"/r/", "/invite/", "/auth/"},
		AuthOnlyPaths:  []string{LoginPath, RegisterPath},
		RoleRules: []RoleRule{
			{Prefix: "/team", Roles: admins},
			{Prefix: "/settings", Roles: admins},
			{Prefix: "/billing", Roles: admins},
		},
	}
}

// LegacyPolicy returns the single-tenant admin/employee variant, where the
// application is split into role-segregated areas and callers are sent to
// their own area instead of a shared root.
//
// Deprecated: kept only for deployments still on the admin/employee layout.
func LegacyPolicy() *Policy {
	p := DefaultPolicy()
	p.Name = "legacy"
	p.RoleRules = append(p.RoleRules,
		RoleRule{Prefix: "/admin", Roles: []domain.Role{domain.RoleOwner, domain.RoleManager}},
		RoleRule{Prefix: "/employee", Roles: []domain.Role{domain.RoleWorker}},
	)
	p.RoleHomes = map[domain.Role]string{
		domain.RoleOwner:   "/admin",
		domain.RoleManager: "/admin",
		domain.RoleWorker:  "/employee",
	}
	return p
}

// PolicyByName returns the named policy variant.
func PolicyByName(name string) (*Policy, bool) {
	switch name {
	case "", "default":
		return DefaultPolicy(), true
	case "legacy":
		return LegacyPolicy(), true
	}
	return nil, false
}

// Normalize cleans a request path so that dot segments and trailing slashes
// cannot be used to dodge a prefix rule.
func Normalize(p string) string {
	if p == "" {
		return RootPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsBypassed reports whether the path skips the gate entirely. The
// file-extension shortcut never applies under a role-gated prefix.
func (p *Policy) IsBypassed(urlPath string) bool {
	urlPath = Normalize(urlPath)
	for _, prefix := range p.BypassPrefixes {
		if hasPathPrefix(urlPath, prefix) {
			return true
		}
	}
	if _, ok := p.roleRule(urlPath); ok {
		return false
	}
	last := urlPath[strings.LastIndex(urlPath, "/")+1:]
	return strings.Contains(last, ".")
}

// Classify returns the route class of a path.
func (p *Policy) Classify(urlPath string) RouteClass {
	urlPath = Normalize(urlPath)

	if contains(p.AuthOnlyPaths, urlPath) {
		return ClassAuthOnly
	}
	if contains(p.PublicPaths, urlPath) {
		return ClassPublic
	}
	for _, prefix := range p.PublicPrefixes {
		if hasPathPrefix(urlPath, prefix) {
			return ClassPublic
		}
	}
	if urlPath == RootPath {
		return ClassRoot
	}
	if _, ok := p.roleRule(urlPath); ok {
		return ClassAdmin
	}
	return ClassProtected
}

func (p *Policy) roleRule(urlPath string) (RoleRule, bool) {
	for _, rule := range p.RoleRules {
		if hasPathPrefix(urlPath, rule.Prefix) {
			return rule, true
		}
	}
	return RoleRule{}, false
}

func (p *Policy) home(m *domain.Membership) string {
	if m != nil {
		if target, ok := p.RoleHomes[m.Role]; ok {
			return target
		}
	}
	return RootPath
}

func (p *Policy) deniedTarget(role domain.Role) string {
	if target, ok := p.RoleHomes[role]; ok {
		return target
	}
	return UnauthorizedPath
}

func hasPathPrefix(urlPath, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(urlPath, prefix)
	}
	return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
