// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/resilience"
)

// pollAttempts is how often a single poll retries before the failure
// counts against the source.
const pollAttempts = 3

// poller drives one source. A poll that still fails after its retries
// feeds the circuit breaker; when the breaker trips the source goes to
// ERROR and stays out of rotation until an operator re-enables it.
type poller struct {
	cfg     config.SourceConfig
	fetch   Fetcher
	q       *queue
	breaker *resilience.CircuitBreaker
	bus     bus.Bus
	logger  zerolog.Logger

	mu    sync.Mutex
	state SourceState
}

func newPoller(cfg config.SourceConfig, fetch Fetcher, q *queue, b bus.Bus, maxFailures int) *poller {
	return &poller{
		cfg:     cfg,
		fetch:   fetch,
		q:       q,
		breaker: resilience.NewCircuitBreaker("source:"+cfg.ID, maxFailures, time.Hour),
		bus:     b,
		logger:  log.WithComponent("ingest").With().Str(log.FieldSourceID, cfg.ID).Logger(),
		state: SourceState{
			ID:     cfg.ID,
			Type:   cfg.Type,
			Status: SourceActive,
		},
	}
}

func (p *poller) run(ctx context.Context) error {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	metrics.SetSourceUp(p.cfg.ID, true)

	// First poll immediately so startup does not wait a full interval.
	p.pollOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *poller) pollOnce(ctx context.Context) {
	if status := p.Status(); status != SourceActive {
		p.logger.Debug().Str("status", string(status)).Msg("ingest.poll.skipped")
		return
	}

	start := time.Now().UTC()
	var raw []byte
	err := p.breaker.Execute(func() error {
		return retry.Do(
			func() error {
				b, ferr := p.fetch.Fetch(ctx)
				if ferr != nil {
					return ferr
				}
				raw = b
				return nil
			},
			retry.Attempts(pollAttempts),
			retry.Delay(p.backoff()),
			retry.MaxDelay(30*time.Second),
			retry.Context(ctx),
			retry.LastErrorOnly(true),
		)
	})

	p.mu.Lock()
	p.state.LastPoll = start
	p.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return // shutdown, not a source fault
		}
		p.recordFailure(ctx, err)
		return
	}

	p.recordSuccess()
	p.q.push(Record{
		SourceID:  p.cfg.ID,
		Timestamp: time.Now().UTC(),
		Format:    p.cfg.Format,
		Bytes:     raw,
	})
}

func (p *poller) backoff() time.Duration {
	if p.cfg.Backoff > 0 {
		return p.cfg.Backoff
	}
	return 2 * time.Second
}

func (p *poller) recordFailure(ctx context.Context, err error) {
	metrics.IncSourceFailure(p.cfg.ID)
	failures := p.breaker.Failures()

	p.mu.Lock()
	p.state.ConsecutiveFailures = failures
	p.state.LastError = err.Error()
	tripped := p.state.Status == SourceActive && p.breaker.State() == string(resilience.StateOpen)
	if tripped {
		p.state.Status = SourceError
	}
	p.mu.Unlock()

	if !tripped {
		p.logger.Warn().Err(err).Int("failures", failures).Msg("ingest.poll.failed")
		return
	}

	metrics.SetSourceUp(p.cfg.ID, false)
	p.logger.Error().Err(err).Int("failures", failures).Msg("ingest.source.error")
	if p.bus != nil {
		evt := model.SourceErrorEvent{
			SourceID: p.cfg.ID,
			Failures: failures,
			LastErr:  err.Error(),
			At:       time.Now().UTC(),
		}
		if perr := p.bus.Publish(ctx, model.TopicSourceError, evt); perr != nil {
			p.logger.Warn().Err(perr).Msg("ingest.source.error.publish")
		}
	}
}

func (p *poller) recordSuccess() {
	now := time.Now().UTC()
	p.mu.Lock()
	p.state.ConsecutiveFailures = 0
	p.state.LastError = ""
	p.state.LastSuccess = now
	p.mu.Unlock()
	metrics.SetSourceUp(p.cfg.ID, true)
}

func (p *poller) Status() SourceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Status
}

func (p *poller) State() SourceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// enable puts an ERROR or DISABLED source back into rotation.
func (p *poller) enable() {
	p.breaker.Reset()
	p.mu.Lock()
	p.state.Status = SourceActive
	p.state.ConsecutiveFailures = 0
	p.state.LastError = ""
	p.mu.Unlock()
	metrics.SetSourceUp(p.cfg.ID, true)
	p.logger.Info().Msg("ingest.source.enabled")
}

// disable takes the source out of rotation without counting a failure.
func (p *poller) disable() {
	p.mu.Lock()
	p.state.Status = SourceDisabled
	p.mu.Unlock()
	metrics.SetSourceUp(p.cfg.ID, false)
	p.logger.Info().Msg("ingest.source.disabled")
}
