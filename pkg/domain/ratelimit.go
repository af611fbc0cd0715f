package domain

import "time"

// RateLimitAction names a rate-limited operation. The string values are
// stored in the rate_limits table and must not change without a migration.
type RateLimitAction string

const (
	RateLimitLogin          RateLimitAction = "login"
	RateLimitForgotPassword RateLimitAction = "forgot_password"
	RateLimitChangePassword RateLimitAction = "change_password"
)

// RateLimitWindow is the counting period for one (identifier, action) pair.
type RateLimitWindow struct {
	Identifier    string
	Action        RateLimitAction
	WindowStart   time.Time
	AttemptCount  int
	LastAttemptAt time.Time
}

// ExpiredAt reports whether a window of the given length has ended at now.
func (w *RateLimitWindow) ExpiredAt(now time.Time, length time.Duration) bool {
	return !now.Before(w.WindowStart.Add(length))
}

// ResetsAt returns the instant the window ends.
func (w *RateLimitWindow) ResetsAt(length time.Duration) time.Time {
	return w.WindowStart.Add(length)
}
