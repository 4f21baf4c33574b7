// SPDX-License-Identifier: MIT

// Package ratelimit throttles alert fan-out so a trainset streaming
// anomalous telemetry cannot flood the event bus.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var alertThrottled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "inductd",
		Name:      "alerts_throttled_total",
		Help:      "Total alerts suppressed by the throttle",
	},
	[]string{"limit_type", "severity"},
)

// Config holds alert throttle configuration
type Config struct {
	// Global limits across the whole depot
	GlobalRate  rate.Limit // alerts per second
	GlobalBurst int        // max burst size

	// Per-trainset limits
	PerTrainsetRate  rate.Limit
	PerTrainsetBurst int

	// Per-severity limits (critical alerts get a larger budget than warnings)
	SeverityRates map[string]rate.Limit
	SeverityBurst map[string]int

	// Cleanup interval for per-trainset limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		GlobalRate:  20, // 20 alerts/s depot-wide
		GlobalBurst: 50,

		PerTrainsetRate:  rate.Every(30 * time.Second), // one alert per 30s per trainset
		PerTrainsetBurst: 3,

		SeverityRates: map[string]rate.Limit{
			"critical": 10, // critical alerts are cut last
			"warning":  2,
		},
		SeverityBurst: map[string]int{
			"critical": 20,
			"warning":  5,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages alert throttling per trainset and per severity
type Limiter struct {
	config Config

	global      *rate.Limiter
	perTrainset map[string]*rate.Limiter
	perSeverity map[string]*rate.Limiter
	mu          sync.RWMutex

	lastCleanup time.Time
}

// New creates a new alert throttle with the given config
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perTrainset: make(map[string]*rate.Limiter),
		perSeverity: make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	// Initialize per-severity limiters
	for severity, sevRate := range config.SeverityRates {
		burst := config.SeverityBurst[severity]
		l.perSeverity[severity] = rate.NewLimiter(sevRate, burst)
	}

	return l
}

// Allow checks if an alert for the trainset may be published.
// Returns true if allowed, false if throttled.
func (l *Limiter) Allow(trainsetID, severity string) bool {
	// 1. Check global limit
	if !l.global.Allow() {
		alertThrottled.WithLabelValues("global", severity).Inc()
		return false
	}

	// 2. Check per-severity limit
	l.mu.RLock()
	sevLimiter, exists := l.perSeverity[severity]
	l.mu.RUnlock()

	if exists && !sevLimiter.Allow() {
		alertThrottled.WithLabelValues("per_severity", severity).Inc()
		return false
	}

	// 3. Check per-trainset limit
	tsLimiter := l.getTrainsetLimiter(trainsetID)
	if !tsLimiter.Allow() {
		alertThrottled.WithLabelValues("per_trainset", severity).Inc()
		return false
	}

	// Periodic cleanup of stale trainset limiters
	l.maybeCleanup()

	return true
}

// getTrainsetLimiter returns the rate limiter for a specific trainset
func (l *Limiter) getTrainsetLimiter(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perTrainset[id]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerTrainsetRate, l.config.PerTrainsetBurst)
		l.perTrainset[id] = limiter
	}

	return limiter
}

// maybeCleanup removes stale trainset limiters if cleanup interval has passed
func (l *Limiter) maybeCleanup() {
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Clear all trainset limiters (simple approach)
	// Alternative: Track last access time and only remove stale entries
	l.perTrainset = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
