// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/ratelimit"
)

// ErrUnknownSource is returned for operations naming a source that was
// never configured.
var ErrUnknownSource = errors.New("unknown source")

// Fabric owns the whole ingestion side: one poller per pull source, one
// bounded queue, one normalizer. Push sources (no endpoint) are fed
// through Submit.
type Fabric struct {
	cfg     config.IngestionConfig
	sources map[string]config.SourceConfig
	order   []string
	q       *queue
	pollers map[string]*poller
	norm    *normalizer
	logger  zerolog.Logger

	fetchers    map[string]Fetcher
	throttleCfg ratelimit.Config
}

type Option func(*Fabric)

// WithFetcher replaces the endpoint-derived fetcher for one source.
// Used by tests and by embedders with bespoke upstream protocols.
func WithFetcher(sourceID string, f Fetcher) Option {
	return func(fa *Fabric) { fa.fetchers[sourceID] = f }
}

// WithThrottle overrides the default alert throttle budgets.
func WithThrottle(cfg ratelimit.Config) Option {
	return func(fa *Fabric) { fa.throttleCfg = cfg }
}

func New(st *fleet.Store, b bus.Bus, cfg config.IngestionConfig, sources []config.SourceConfig, opts ...Option) (*Fabric, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}

	fa := &Fabric{
		cfg:         cfg,
		sources:     make(map[string]config.SourceConfig, len(sources)),
		q:           newQueue(cfg.BufferSize),
		pollers:     make(map[string]*poller),
		logger:      log.WithComponent("ingest"),
		fetchers:    make(map[string]Fetcher),
		throttleCfg: ratelimit.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(fa)
	}

	for _, sc := range sources {
		if _, dup := fa.sources[sc.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", sc.ID)
		}
		fetch := fa.fetchers[sc.ID]
		if fetch == nil {
			var err error
			fetch, err = fetcherFor(sc)
			if err != nil {
				return nil, err
			}
		}
		fa.sources[sc.ID] = sc
		fa.order = append(fa.order, sc.ID)
		if fetch != nil {
			fa.pollers[sc.ID] = newPoller(sc, fetch, fa.q, b, cfg.MaxFailures)
		}
	}

	fa.norm = &normalizer{
		store:     st,
		bus:       b,
		q:         fa.q,
		sources:   fa.sources,
		overrides: newOverrideStore(),
		throttle:  ratelimit.New(fa.throttleCfg),
		logger:    log.WithComponent("ingest.normalizer"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	return fa, nil
}

// Run drives all pollers and the normalizer until ctx is cancelled.
func (f *Fabric) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return f.norm.run(ctx) })
	for _, p := range f.pollers {
		p := p
		g.Go(func() error { return p.run(ctx) })
	}

	f.logger.Info().
		Int("sources", len(f.sources)).
		Int("pollers", len(f.pollers)).
		Msg("ingest.started")
	return g.Wait()
}

// Submit pushes one record through the normalizer synchronously and
// returns the per-delta apply results. This is the entry point for push
// sources and for tests.
func (f *Fabric) Submit(ctx context.Context, rec Record) ([]fleet.ApplyResult, error) {
	if _, ok := f.sources[rec.SourceID]; !ok {
		return nil, fmt.Errorf("submit %q: %w", rec.SourceID, ErrUnknownSource)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return f.norm.process(ctx, rec)
}

// SourceStates reports every configured source in declaration order.
// Push-only sources are always ACTIVE.
func (f *Fabric) SourceStates() []SourceState {
	states := make([]SourceState, 0, len(f.order))
	for _, id := range f.order {
		if p, ok := f.pollers[id]; ok {
			states = append(states, p.State())
			continue
		}
		sc := f.sources[id]
		states = append(states, SourceState{ID: sc.ID, Type: sc.Type, Status: SourceActive})
	}
	return states
}

// EnableSource puts an ERROR or DISABLED source back into rotation.
func (f *Fabric) EnableSource(id string) error {
	p, ok := f.pollers[id]
	if !ok {
		if _, known := f.sources[id]; known {
			return fmt.Errorf("source %q is push-only", id)
		}
		return fmt.Errorf("enable %q: %w", id, ErrUnknownSource)
	}
	p.enable()
	return nil
}

// DisableSource takes a source out of rotation without marking it failed.
func (f *Fabric) DisableSource(id string) error {
	p, ok := f.pollers[id]
	if !ok {
		if _, known := f.sources[id]; known {
			return fmt.Errorf("source %q is push-only", id)
		}
		return fmt.Errorf("disable %q: %w", id, ErrUnknownSource)
	}
	p.disable()
	return nil
}

// QueueDepth exposes the current buffer depth for readiness reporting.
func (f *Fabric) QueueDepth() int { return f.q.depth() }
