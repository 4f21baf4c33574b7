// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache holds the most recent induction plan per depot so the
// read path never touches the plan store between cycles.
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/model"
)

// Cache is a per-depot plan cache with TTL expiry.
type Cache interface {
	// Get returns the cached plan for a depot, or false when absent or expired.
	Get(depot string) (*model.InductionPlan, bool)
	// Set caches the plan for its depot with the given TTL.
	Set(depot string, plan *model.InductionPlan, ttl time.Duration)
	// Delete drops the cached plan for a depot.
	Delete(depot string)
	// Clear drops all cached plans.
	Clear()
	// Stats returns hit/miss counters.
	Stats() Stats
	// Close releases backend resources.
	Close() error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// janitorInterval is how often the memory backend sweeps expired plans.
const janitorInterval = 10 * time.Minute

// Open builds the cache selected by backend: "" or "memory" for the
// in-process cache, "redis" for a shared one, "none" to disable caching.
func Open(backend string, redisCfg RedisConfig, logger zerolog.Logger) (Cache, error) {
	switch backend {
	case "", "memory":
		return NewMemory(janitorInterval), nil
	case "redis":
		return NewRedis(redisCfg, logger)
	case "none":
		return NewNoOp(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %q", backend)
	}
}

type entry struct {
	plan       *model.InductionPlan
	expiration time.Time
}

func (e *entry) isExpired() bool {
	return time.Now().After(e.expiration)
}

// memoryCache is the in-process implementation of Cache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	janitor *janitor

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewMemory creates an in-process cache. A cleanupInterval > 0 starts a
// background janitor that sweeps expired entries.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
	}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(depot string) (*model.InductionPlan, bool) {
	c.mu.RLock()
	e, found := c.entries[depot]
	c.mu.RUnlock()

	if !found || e.isExpired() {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.plan, true
}

func (c *memoryCache) Set(depot string, plan *model.InductionPlan, ttl time.Duration) {
	c.mu.Lock()
	c.entries[depot] = &entry{
		plan:       plan,
		expiration: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	c.sets.Add(1)
}

func (c *memoryCache) Delete(depot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, depot)
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}

// deleteExpired sweeps expired entries and returns how many were removed.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for depot, e := range c.entries {
		if e.isExpired() {
			delete(c.entries, depot)
			count++
		}
	}
	c.evictions.Add(int64(count))
	return count
}

func (c *memoryCache) Close() error {
	if c.janitor != nil {
		c.janitor.halt()
	}
	return nil
}

// janitor periodically sweeps expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

func (j *janitor) halt() {
	j.once.Do(func() { close(j.stop) })
}

// noOpCache disables caching; every read falls through to the plan store.
type noOpCache struct{}

// NewNoOp creates a cache that caches nothing.
func NewNoOp() Cache {
	return noOpCache{}
}

func (noOpCache) Get(string) (*model.InductionPlan, bool) { return nil, false }

func (noOpCache) Set(string, *model.InductionPlan, time.Duration) {}

func (noOpCache) Delete(string) {}

func (noOpCache) Clear() {}

func (noOpCache) Stats() Stats { return Stats{} }

func (noOpCache) Close() error { return nil }
