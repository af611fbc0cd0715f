// Package ratelimit counts attempts at sensitive operations per client
// identifier in fixed windows backed by a shared store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// Rule bounds the attempts allowed for one action.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

// Rules is the fixed table of limited actions.
var Rules = map[domain.RateLimitAction]Rule{
	domain.RateLimitLogin:          {MaxAttempts: 5, Window: 15 * time.Minute},
	domain.RateLimitForgotPassword: {MaxAttempts: 3, Window: 60 * time.Minute},
	domain.RateLimitChangePassword: {MaxAttempts: 3, Window: 30 * time.Minute},
}

// RuleFor returns the rule for action.
func RuleFor(action domain.RateLimitAction) (Rule, error) {
	rule, ok := Rules[action]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", domain.ErrUnknownRateLimitAction, action)
	}
	return rule, nil
}

// LongestWindow is the longest window of any rule. Windows that started
// earlier than this can no longer affect a decision.
func LongestWindow() time.Duration {
	var longest time.Duration
	for _, rule := range Rules {
		if rule.Window > longest {
			longest = rule.Window
		}
	}
	return longest
}

// Store persists counting windows. Implementations must make Increment
// atomic with respect to concurrent callers on other instances.
type Store interface {
	// Get returns domain.ErrRateLimitWindowNotFound when no row exists.
	Get(ctx context.Context, identifier string, action domain.RateLimitAction) (*domain.RateLimitWindow, error)
	// Increment adds one attempt, starting a new window at now when none
	// exists or the existing one has expired, and returns the updated window.
	Increment(ctx context.Context, identifier string, action domain.RateLimitAction, now time.Time, window time.Duration) (*domain.RateLimitWindow, error)
	Delete(ctx context.Context, identifier string, action domain.RateLimitAction) error
}

// FailurePolicy decides the outcome when the store cannot be reached.
type FailurePolicy int

const (
	// FailOpen allows the attempt. Store outages then disable throttling.
	FailOpen FailurePolicy = iota
	// FailClosed denies the attempt.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// ParseFailurePolicy accepts "open" or "closed"; empty means open.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("unknown rate limit failure policy %q", s)
}

// Result is the outcome of a check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// Config configures a Limiter.
type Config struct {
	FailurePolicy FailurePolicy
	Logger        *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Limiter applies Rules against a Store.
type Limiter struct {
	store  Store
	policy FailurePolicy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Limiter.
func New(store Store, cfg Config) *Limiter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		store:  store,
		policy: cfg.FailurePolicy,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Check reports whether another attempt is allowed without recording one.
func (l *Limiter) Check(ctx context.Context, identifier string, action domain.RateLimitAction) (Result, error) {
	rule, err := RuleFor(action)
	if err != nil {
		return Result{}, err
	}

	now := l.now()
	w, err := l.store.Get(ctx, identifier, action)
	if errors.Is(err, domain.ErrRateLimitWindowNotFound) {
		return Result{Allowed: true, Remaining: rule.MaxAttempts - 1}, nil
	}
	if err != nil {
		return l.storeFailure(err, "check", identifier, action, rule), nil
	}

	if w.ExpiredAt(now, rule.Window) {
		return Result{Allowed: true, Remaining: rule.MaxAttempts - 1}, nil
	}
	if w.AttemptCount < rule.MaxAttempts {
		return Result{Allowed: true, Remaining: rule.MaxAttempts - w.AttemptCount}, nil
	}
	return Result{Allowed: false, RetryAfter: w.ResetsAt(rule.Window).Sub(now)}, nil
}

// Record counts one attempt.
func (l *Limiter) Record(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	rule, err := RuleFor(action)
	if err != nil {
		return err
	}
	if _, err := l.store.Increment(ctx, identifier, action, l.now(), rule.Window); err != nil {
		l.logger.Warn("rate limit record failed", "error", err, "action", action, "identifier", identifier)
		return fmt.Errorf("record %s attempt: %w", action, err)
	}
	return nil
}

// Reset clears the window, typically after a successful login.
func (l *Limiter) Reset(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	if _, err := RuleFor(action); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, identifier, action); err != nil {
		l.logger.Warn("rate limit reset failed", "error", err, "action", action, "identifier", identifier)
		return fmt.Errorf("reset %s window: %w", action, err)
	}
	return nil
}

// Attempt counts one attempt and reports whether it was within the limit.
// The increment and the decision come from a single store round-trip, so
// concurrent callers cannot all pass a check that only one of them should.
func (l *Limiter) Attempt(ctx context.Context, identifier string, action domain.RateLimitAction) (Result, error) {
	rule, err := RuleFor(action)
	if err != nil {
		return Result{}, err
	}

	now := l.now()
	w, err := l.store.Increment(ctx, identifier, action, now, rule.Window)
	if err != nil {
		return l.storeFailure(err, "attempt", identifier, action, rule), nil
	}

	if w.AttemptCount <= rule.MaxAttempts {
		return Result{Allowed: true, Remaining: rule.MaxAttempts - w.AttemptCount}, nil
	}
	return Result{Allowed: false, RetryAfter: w.ResetsAt(rule.Window).Sub(now)}, nil
}

func (l *Limiter) storeFailure(err error, op, identifier string, action domain.RateLimitAction, rule Rule) Result {
	l.logger.Warn("rate limit store unavailable",
		"error", err,
		"op", op,
		"action", action,
		"identifier", identifier,
		"failure_policy", l.policy.String(),
	)
	if l.policy == FailClosed {
		return Result{Allowed: false, RetryAfter: time.Minute}
	}
	return Result{Allowed: true, Remaining: rule.MaxAttempts - 1}
}
