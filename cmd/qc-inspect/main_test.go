package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-inspect/internal/config"
	"github.com/tendant/qc-inspect/pkg/ratelimit"
	"github.com/tendant/qc-inspect/pkg/repository"
)

func TestRootCommandSubcommands(t *testing.T) {
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "cleanup"}, names)

	migrate, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())
}

func TestNewRateLimitStore(t *testing.T) {
	ctx := context.Background()

	t.Run("postgres", func(t *testing.T) {
		cfg := &config.Config{RateLimit: config.RateLimitConfig{Store: "postgres"}}
		store, closeStore, err := newRateLimitStore(ctx, cfg, nil)
		require.NoError(t, err)
		defer closeStore()
		assert.IsType(t, &repository.RateLimitsRepository{}, store)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{RateLimit: config.RateLimitConfig{Store: "memory"}}
		store, closeStore, err := newRateLimitStore(ctx, cfg, nil)
		require.NoError(t, err)
		defer closeStore()
		assert.IsType(t, &ratelimit.MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &config.Config{
			RateLimit: config.RateLimitConfig{Store: "redis"},
			Redis:     config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"},
		}
		store, closeStore, err := newRateLimitStore(ctx, cfg, nil)
		require.NoError(t, err)
		defer closeStore()
		assert.IsType(t, &ratelimit.RedisStore{}, store)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := &config.Config{
			RateLimit: config.RateLimitConfig{Store: "redis"},
			Redis:     config.RedisConfig{Addr: addr},
		}
		_, _, err := newRateLimitStore(ctx, cfg, nil)
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := &config.Config{RateLimit: config.RateLimitConfig{Store: "etcd"}}
		_, _, err := newRateLimitStore(ctx, cfg, nil)
		assert.Error(t, err)
	})
}
