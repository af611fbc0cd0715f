package middleware

import (
	"context"

	"github.com/tendant/qc-inspect/pkg/domain"
)

type contextKey string

const (
	// PrincipalKey is the context key for the authenticated caller.
	PrincipalKey contextKey = "principal"
	// MembershipKey is the context key for the caller's active membership.
	MembershipKey contextKey = "membership"
)

// WithPrincipal returns a copy of ctx carrying the caller identity.
// Either value may be nil.
func WithPrincipal(ctx context.Context, p *domain.Principal, m *domain.Membership) context.Context {
	if p != nil {
		ctx = context.WithValue(ctx, PrincipalKey, p)
	}
	if m != nil {
		ctx = context.WithValue(ctx, MembershipKey, m)
	}
	return ctx
}

// GetPrincipal extracts the authenticated caller from the request context.
func GetPrincipal(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*domain.Principal)
	return p, ok && p != nil
}

// GetMembership extracts the caller's active membership from the request context.
func GetMembership(ctx context.Context) (*domain.Membership, bool) {
	m, ok := ctx.Value(MembershipKey).(*domain.Membership)
	return m, ok && m != nil
}
