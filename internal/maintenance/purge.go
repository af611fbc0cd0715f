// Package maintenance removes rows that no request can read any more:
// expired sessions, stale emailed tokens and finished rate-limit windows.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionPurger deletes sessions that expired before a cutoff.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenPurger deletes consumed or expired verification tokens.
type TokenPurger interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// WindowPurger deletes rate-limit windows that started before a cutoff.
type WindowPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Result counts what one run deleted.
type Result struct {
	Sessions int64
	Tokens   int64
	Windows  int64
}

// Purger runs the cleanup queries. Windows may be nil when the attempt
// counters live in a store that expires keys itself.
type Purger struct {
	Sessions SessionPurger
	Tokens   TokenPurger
	Windows  WindowPurger
	// WindowRetention keeps windows at least this long after they start.
	WindowRetention time.Duration
	Now             func() time.Time
}

// Run deletes everything past its cutoff. It stops at the first error.
func (p *Purger) Run(ctx context.Context) (Result, error) {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	var res Result
	var err error
	if res.Sessions, err = p.Sessions.DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("delete expired sessions: %w", err)
	}
	if res.Tokens, err = p.Tokens.DeleteStale(ctx, now); err != nil {
		return res, fmt.Errorf("delete stale tokens: %w", err)
	}
	if p.Windows != nil {
		if res.Windows, err = p.Windows.DeleteExpired(ctx, now.Add(-p.WindowRetention)); err != nil {
			return res, fmt.Errorf("delete rate limit windows: %w", err)
		}
	}
	return res, nil
}

// Scheduler runs a Purger on a cron schedule inside the server process.
type Scheduler struct {
	cron    *cron.Cron
	purger  *Purger
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler registers the purge job. schedule uses the standard five
// field cron syntax or descriptors such as "@hourly".
func NewScheduler(purger *Purger, schedule string, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		purger:  purger,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cleanup scheduler started")
}

// Stop waits for a running purge to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.purger.Run(ctx)
	if err != nil {
		s.logger.Warn("scheduled cleanup failed", "error", err)
		return
	}
	s.logger.Info("scheduled cleanup finished",
		"sessions", res.Sessions,
		"tokens", res.Tokens,
		"rate_limit_windows", res.Windows,
	)
}
