package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurge struct {
	n      int64
	err    error
	before time.Time
	calls  int
}

func (f *fakePurge) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.n, f.err
}

func (f *fakePurge) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	return f.DeleteExpired(ctx, before)
}

func TestPurger_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions, tokens, windows := &fakePurge{n: 3}, &fakePurge{n: 2}, &fakePurge{n: 7}
	p := &Purger{
		Sessions:        sessions,
		Tokens:          tokens,
		Windows:         windows,
		WindowRetention: time.Hour,
		Now:             func() time.Time { return now },
	}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Sessions: 3, Tokens: 2, Windows: 7}, res)
	assert.Equal(t, now, sessions.before)
	assert.Equal(t, now, tokens.before)
	assert.Equal(t, now.Add(-time.Hour), windows.before)
}

func TestPurger_WithoutWindows(t *testing.T) {
	p := &Purger{Sessions: &fakePurge{}, Tokens: &fakePurge{}}

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Windows)
}

func TestPurger_StopsAtFirstError(t *testing.T) {
	tokens := &fakePurge{}
	p := &Purger{
		Sessions: &fakePurge{err: errors.New("connection reset")},
		Tokens:   tokens,
	}

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired sessions")
	assert.Zero(t, tokens.calls)
}

func TestNewScheduler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := &Purger{Sessions: &fakePurge{}, Tokens: &fakePurge{}}

	s, err := NewScheduler(p, "@hourly", time.Minute, logger)
	require.NoError(t, err)
	s.Start()
	s.Stop()

	_, err = NewScheduler(p, "every now and then", time.Minute, logger)
	assert.Error(t, err)
}

func TestScheduler_RunLogsFailures(t *testing.T) {
	sessions := &fakePurge{err: errors.New("boom")}
	s, err := NewScheduler(&Purger{Sessions: sessions, Tokens: &fakePurge{}}, "@daily", time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	s.run()
	assert.Equal(t, 1, sessions.calls)
}
