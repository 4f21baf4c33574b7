// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package service is the embedded planning facade: one front door over
// the cycle controller, the scenario simulator and the event bus, for
// the ops HTTP layer and for programs linking the planner directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/cycle"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/planstore"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/scenario"
)

// Callers match failure kinds with errors.Is against these sentinels;
// the concrete errors originate in the subsystems behind the facade.
var (
	ErrNotFound                = planstore.ErrNotFound
	ErrCycleInFlight           = cycle.ErrCycleInFlight
	ErrUnresolvableConstraints = repair.ErrUnresolvable
	ErrInvalidPatch            = scenario.ErrInvalidPatch
	ErrUnauthorized            = cycle.ErrUnauthorized
	ErrUnknownTrainset         = cycle.ErrUnknownTrainset
	ErrInvalidLabel            = cycle.ErrInvalidLabel
	ErrUnknownDepot            = errors.New("unknown depot")
)

// Overrides tightens or loosens the hard bounds for a single nightly
// run. Zero fields keep the configured values.
type Overrides struct {
	MinService     int `json:"minService,omitempty"`
	MaxMaintenance int `json:"maxMaintenance,omitempty"`
}

// Deps name the subsystems the facade fronts. All are required.
type Deps struct {
	Controller *cycle.Controller
	Simulator  *scenario.Simulator
	Fleet      cycle.SnapshotSource
	Bus        bus.Bus
}

type Service struct {
	ctrl   *cycle.Controller
	sim    *scenario.Simulator
	fleet  cycle.SnapshotSource
	bus    bus.Bus
	logger zerolog.Logger
}

func New(deps Deps) *Service {
	return &Service{
		ctrl:   deps.Controller,
		sim:    deps.Simulator,
		fleet:  deps.Fleet,
		bus:    deps.Bus,
		logger: log.WithComponent("service"),
	}
}

// RunNightlyInduction plans the next service day for a depot. A zero
// planning instant means now; nil overrides keep the configured bounds.
// An unresolvable constraint set still yields a plan, tagged infeasible
// and held under confidence 0.5.
func (s *Service) RunNightlyInduction(ctx context.Context, depot string, at time.Time, ov *Overrides) (*model.InductionPlan, error) {
	if depot != "" && depot != s.ctrl.Depot() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDepot, depot)
	}
	var lim *repair.Limits
	if ov != nil {
		lim = &repair.Limits{MinService: ov.MinService, MaxMaintenance: ov.MaxMaintenance}
	}
	return s.ctrl.RunNightlyAt(ctx, at, lim)
}

// TriggerRealtimeCycle replans in fast mode right now and acknowledges
// with the committed plan id. A trigger while another cycle runs fails
// with ErrCycleInFlight; the caller retries after the running cycle
// publishes its result.
func (s *Service) TriggerRealtimeCycle(ctx context.Context, reason string) (string, error) {
	if reason == "" {
		reason = "manual"
	}
	plan, err := s.ctrl.RunRealtime(ctx, reason)
	if err != nil {
		return "", err
	}
	return plan.ID, nil
}

// GetCurrentPlan returns the newest committed plan for a depot. An
// empty depot means the controller's own.
func (s *Service) GetCurrentPlan(ctx context.Context, depot string) (*model.InductionPlan, error) {
	return s.ctrl.Current(ctx, depot)
}

// SimulateScenario replans against the live snapshot with the patches
// applied. The result is hypothetical: no plan id, nothing persisted,
// no events published.
func (s *Service) SimulateScenario(ctx context.Context, patches []scenario.Patch) (*model.InductionPlan, error) {
	snap, err := s.fleet.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return s.sim.Simulate(ctx, &snap, patches, s.ctrl.Limits())
}

// SubmitManualDecision applies a supervisor override to one decision of
// a stored plan. The updated decision comes back along with the plan
// revision now carrying it; the override lands in the feedback log.
func (s *Service) SubmitManualDecision(ctx context.Context, planID, trainsetID string, label model.DecisionLabel, authorizedBy string) (*model.InductionPlan, *model.Decision, error) {
	return s.ctrl.Override(ctx, planID, trainsetID, label, authorizedBy)
}

const fanInBuffer = 64

// SubscribeEvents subscribes to one or more topics behind a single
// channel. Like the bus itself, a slow reader loses messages instead of
// stalling publishers. Close unsubscribes every topic; the merged
// channel closes once the last one drains.
func (s *Service) SubscribeEvents(ctx context.Context, topics ...string) (bus.Subscriber, error) {
	if len(topics) == 0 {
		return nil, errors.New("subscribe: at least one topic required")
	}
	if len(topics) == 1 {
		return s.bus.Subscribe(ctx, topics[0])
	}

	m := &multiSubscriber{out: make(chan bus.Message, fanInBuffer)}
	for _, topic := range topics {
		sub, err := s.bus.Subscribe(ctx, topic)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		m.subs = append(m.subs, sub)
		m.wg.Add(1)
		go m.forward(topic, sub)
	}
	go func() {
		m.wg.Wait()
		close(m.out)
	}()
	s.logger.Debug().Strs("topics", topics).Msg("service.subscribe")
	return m, nil
}

// multiSubscriber merges several topic subscriptions into one channel.
type multiSubscriber struct {
	subs []bus.Subscriber
	out  chan bus.Message
	wg   sync.WaitGroup
}

func (m *multiSubscriber) forward(topic string, sub bus.Subscriber) {
	defer m.wg.Done()
	for msg := range sub.C() {
		select {
		case m.out <- msg:
		default:
			metrics.IncBusDrop(topic)
		}
	}
}

func (m *multiSubscriber) C() <-chan bus.Message { return m.out }

func (m *multiSubscriber) Close() error {
	var err error
	for _, sub := range m.subs {
		err = multierr.Append(err, sub.Close())
	}
	return err
}

var _ bus.Subscriber = (*multiSubscriber)(nil)
