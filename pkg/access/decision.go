package access

import "github.com/tendant/qc-inspect/pkg/domain"

// Decision is the outcome of evaluating a request.
type Decision struct {
	Redirect bool
	Target   string
}

// Allow lets the request through.
func Allow() Decision { return Decision{} }

// RedirectTo sends the caller to target.
func RedirectTo(target string) Decision { return Decision{Redirect: true, Target: target} }

func (d Decision) String() string {
	if d.Redirect {
		return "redirect:" + d.Target
	}
	return "allow"
}

// Evaluate decides whether a request for urlPath may proceed. A nil principal
// means the caller is unauthenticated; a nil or non-active membership means the
// caller has not joined a tenant yet.
//
// Rules, first match wins:
//  1. bypassed paths are allowed
//  2. non-public paths need a principal, else /login
//  3. authenticated callers on auth-only paths go home
//  4. other public paths are allowed
//  5. "/" needs a membership, else /onboarding
//  6. everything else needs a membership, else /onboarding (except /onboarding itself)
//  7. role-restricted prefixes need a permitted role, else /unauthorized
func (p *Policy) Evaluate(urlPath string, principal *domain.Principal, membership *domain.Membership) Decision {
	urlPath = Normalize(urlPath)
	if p.IsBypassed(urlPath) {
		return Allow()
	}

	if principal == nil || !membership.IsActive() {
		membership = nil
	}

	class := p.Classify(urlPath)
	public := class == ClassPublic || class == ClassAuthOnly

	if !public && principal == nil {
		return RedirectTo(LoginPath)
	}
	if class == ClassAuthOnly && principal != nil {
		return RedirectTo(p.home(membership))
	}
	if public {
		return Allow()
	}

	if class == ClassRoot {
		if membership == nil {
			return RedirectTo(OnboardingPath)
		}
		return Allow()
	}

	if membership == nil {
		if urlPath == OnboardingPath {
			return Allow()
		}
		return RedirectTo(OnboardingPath)
	}

	if rule, ok := p.roleRule(urlPath); ok && !rule.permits(membership.Role) {
		return RedirectTo(p.deniedTarget(membership.Role))
	}

	return Allow()
}
