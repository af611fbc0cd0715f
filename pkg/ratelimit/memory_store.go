package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/qc-inspect/pkg/domain"
)

type memoryKey struct {
	identifier string
	action     domain.RateLimitAction
}

// MemoryStore keeps windows in process memory. Counts are not shared
// between instances, so use it for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[memoryKey]domain.RateLimitWindow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[memoryKey]domain.RateLimitWindow)}
}

func (s *MemoryStore) Get(ctx context.Context, identifier string, action domain.RateLimitAction) (*domain.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[memoryKey{identifier, action}]
	if !ok {
		return nil, domain.ErrRateLimitWindowNotFound
	}
	return &w, nil
}

func (s *MemoryStore) Increment(ctx context.Context, identifier string, action domain.RateLimitAction, now time.Time, window time.Duration) (*domain.RateLimitWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{identifier, action}
	w, ok := s.windows[key]
	if !ok || w.ExpiredAt(now, window) {
		w = domain.RateLimitWindow{
			Identifier:  identifier,
			Action:      action,
			WindowStart: now,
		}
	}
	w.AttemptCount++
	w.LastAttemptAt = now
	s.windows[key] = w

	out := w
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, identifier string, action domain.RateLimitAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, memoryKey{identifier, action})
	return nil
}

// DeleteExpired drops windows whose start is older than before.
func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, w := range s.windows {
		if w.WindowStart.Before(before) {
			delete(s.windows, k)
			n++
		}
	}
	return n, nil
}
