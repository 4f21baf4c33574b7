// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health backs the liveness and readiness probes: a checker
// registry over the plan store, the cache, the feedback log and the
// ingestion sources, aggregated into one status.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/inductd/internal/cache"
	"github.com/ManuGH/inductd/internal/feedback"
	"github.com/ManuGH/inductd/internal/ingest"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/planstore"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one component's verdict.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness payload. Always 200; the status field
// carries the nuance.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptimeSeconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload; Ready false maps to 503.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one registered component probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager aggregates registered checkers into probe responses.
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now()}
}

// RegisterChecker adds a component probe. Not safe for concurrent use;
// register everything before serving.
func (m *Manager) RegisterChecker(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Health reports liveness. The process being able to answer is the
// check; component results are attached only when verbose.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now().UTC(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.run(ctx)
	}
	return resp
}

// Ready reports readiness: every registered component must be at least
// degraded for traffic to flow.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.run(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) run(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy
	for _, c := range m.checkers {
		res := c.Check(ctx)
		checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return checks, status
}

// ServeHealth handles GET /healthz. ?verbose=true attaches component
// results; the response code is 200 either way.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("health.encode")
	}
}

// ServeReady handles GET /readyz; unhealthy components answer 503.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")
	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("readiness.encode")
	}
}

// StoreChecker probes the plan store and the freshness of the current
// plan. No plan yet is degraded, not unhealthy: a fresh deployment is
// ready to take triggers before its first cycle.
type StoreChecker struct {
	store  planstore.Store
	depot  string
	maxAge time.Duration
}

func NewStoreChecker(store planstore.Store, depot string, maxAge time.Duration) *StoreChecker {
	if maxAge <= 0 {
		maxAge = 26 * time.Hour
	}
	return &StoreChecker{store: store, depot: depot, maxAge: maxAge}
}

func (c *StoreChecker) Name() string { return "plan_store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	plan, err := c.store.Current(ctx, c.depot)
	switch {
	case errors.Is(err, planstore.ErrNotFound):
		return CheckResult{Status: StatusDegraded, Message: "no plan committed yet"}
	case err != nil:
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if age := time.Since(plan.GeneratedAt); age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("current plan is %s old", age.Round(time.Minute)),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: plan.ID}
}

// CacheChecker pings cache backends that support it; backends without a
// ping, the in-memory one included, count as healthy.
type CacheChecker struct {
	cache cache.Cache
}

func NewCacheChecker(c cache.Cache) *CacheChecker { return &CacheChecker{cache: c} }

func (c *CacheChecker) Name() string { return "plan_cache" }

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	p, ok := c.cache.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return CheckResult{Status: StatusHealthy, Message: "in-memory"}
	}
	if err := p.HealthCheck(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// FeedbackChecker runs the SQLite quick check against the feedback log.
type FeedbackChecker struct {
	log *feedback.Log
}

func NewFeedbackChecker(l *feedback.Log) *FeedbackChecker { return &FeedbackChecker{log: l} }

func (c *FeedbackChecker) Name() string { return "feedback_log" }

func (c *FeedbackChecker) Check(ctx context.Context) CheckResult {
	if c.log == nil {
		return CheckResult{Status: StatusHealthy, Message: "disabled"}
	}
	if err := c.log.Integrity(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SourcesChecker mirrors the ingestion fabric's per-source state: any
// source in ERROR degrades readiness, every source down is unhealthy.
// Wire it with Fabric.SourceStates.
type SourcesChecker struct {
	states func() []ingest.SourceState
}

func NewSourcesChecker(states func() []ingest.SourceState) *SourcesChecker {
	return &SourcesChecker{states: states}
}

func (c *SourcesChecker) Name() string { return "ingestion_sources" }

func (c *SourcesChecker) Check(context.Context) CheckResult {
	states := c.states()
	if len(states) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "no sources configured"}
	}
	var failed []string
	active := 0
	for _, st := range states {
		switch st.Status {
		case ingest.SourceError:
			failed = append(failed, st.ID)
		case ingest.SourceActive:
			active++
		}
	}
	switch {
	case len(failed) == 0:
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d/%d sources active", active, len(states))}
	case active == 0:
		return CheckResult{Status: StatusUnhealthy, Error: "all sources failing: " + strings.Join(failed, ", ")}
	default:
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d/%d sources failing: %s", len(failed), len(states), strings.Join(failed, ", ")),
		}
	}
}
