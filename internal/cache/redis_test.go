// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, &RedisCache{client: client, logger: zerolog.Nop()}
}

func TestRedisRoundtrip(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	plan := testPlan("MUTT|2025-06-01T23:00:00Z|1", "MUTT")
	c.Set("MUTT", plan, 5*time.Minute)

	got, ok := c.Get("MUTT")
	require.True(t, ok, "expected cached plan for MUTT")
	assert.Equal(t, plan, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestRedisGetMissing(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	got, ok := c.Get("WEST")
	assert.False(t, ok)
	assert.Nil(t, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedisTTL(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	c.Set("MUTT", testPlan("p1", "MUTT"), 100*time.Millisecond)

	_, ok := c.Get("MUTT")
	require.True(t, ok, "expected plan before expiry")

	mr.FastForward(200 * time.Millisecond)

	_, ok = c.Get("MUTT")
	assert.False(t, ok, "expected plan to be expired")
}

func TestRedisDelete(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	c.Set("MUTT", testPlan("p1", "MUTT"), 5*time.Minute)

	_, ok := c.Get("MUTT")
	require.True(t, ok)

	c.Delete("MUTT")

	_, ok = c.Get("MUTT")
	assert.False(t, ok)
}

func TestRedisClear(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	c.Set("MUTT", testPlan("p1", "MUTT"), 5*time.Minute)
	c.Set("WEST", testPlan("p2", "WEST"), 5*time.Minute)
	c.Set("NORD", testPlan("p3", "NORD"), 5*time.Minute)

	stats := c.Stats()
	require.Equal(t, 3, stats.CurrentSize)

	c.Clear()

	stats = c.Stats()
	assert.Equal(t, 0, stats.CurrentSize)

	_, ok := c.Get("MUTT")
	assert.False(t, ok)
}

func TestRedisHealthCheck(t *testing.T) {
	mr, c := setupMiniRedis(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.HealthCheck(ctx))

	mr.Close()

	assert.Error(t, c.HealthCheck(ctx), "expected ping to fail after shutdown")
}

func TestOpenRedisBackend(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	defer mr.Close()

	c, err := Open("redis", RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.Close())

	_, err = Open("redis", RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis connection failed")
}

func BenchmarkRedisSet(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := &RedisCache{client: client, logger: zerolog.Nop()}
	p := testPlan("p1", "MUTT")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set("MUTT", p, 5*time.Minute)
	}
}

func BenchmarkRedisGet(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := &RedisCache{client: client, logger: zerolog.Nop()}
	c.Set("MUTT", testPlan("p1", "MUTT"), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("MUTT")
	}
}
