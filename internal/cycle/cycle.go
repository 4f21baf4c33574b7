// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/cache"
	"github.com/ManuGH/inductd/internal/export"
	"github.com/ManuGH/inductd/internal/feedback"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/planstore"
	"github.com/ManuGH/inductd/internal/ratelimit"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/schedule"
	"github.com/ManuGH/inductd/internal/scoring"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
	"github.com/ManuGH/inductd/internal/telemetry"
)

var (
	// ErrCycleInFlight rejects a trigger while another run holds the cycle.
	ErrCycleInFlight = errors.New("cycle already in flight")
	// ErrUnknownTrainset rejects an override for a unit the plan does not cover.
	ErrUnknownTrainset = errors.New("trainset not in plan")
	// ErrInvalidLabel rejects an override label outside the decision set.
	ErrInvalidLabel = errors.New("invalid decision label")
	// ErrUnauthorized rejects an override without an authorizing operator.
	ErrUnauthorized = errors.New("override requires an authorizing operator")
)

// Cycle modes as they appear in metrics and events.
const (
	modeNightly  = "nightly"
	modeRealtime = "realtime"
)

// SnapshotSource yields the live fleet state for a run.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (model.FleetSnapshot, error)
}

// Config bounds the controller. Zero durations and counts fall back to
// the nightly defaults.
type Config struct {
	Depot              string
	MinService         int
	MaxMaintenance     int
	Interval           time.Duration // monitoring-loop period
	Timeout            time.Duration // per-cycle deadline
	CacheTTL           time.Duration
	BaselineMoves      int // unoptimized moves the energy baseline assumes
	FitnessWarningDays int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.BaselineMoves <= 0 {
		c.BaselineMoves = 100
	}
	if c.FitnessWarningDays <= 0 {
		c.FitnessWarningDays = 30
	}
	return c
}

// Deps are the collaborating subsystems. Fleet, Solver, Stabling,
// Plans, Cache and Bus are required; Health defaults to an analyzer on
// the bus, and Export, Schedule, Alerts and Feedback may stay nil.
type Deps struct {
	Fleet    SnapshotSource
	Solver   *solver.Ensemble
	Stabling *stabling.Optimizer
	Health   *scoring.Analyzer
	Plans    planstore.Store
	Cache    cache.Cache
	Export   *export.Writer
	Bus      bus.Bus
	Schedule *schedule.Evaluator
	Alerts   *ratelimit.Limiter
	Feedback *feedback.Log
}

// Controller serializes induction runs for one depot and keeps the plan
// store, cache, export mirror and event bus consistent with each other.
type Controller struct {
	cfg      Config
	deps     Deps
	pipeline Pipeline
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	inFlight atomic.Bool
	seq      atomic.Int64
}

func New(cfg Config, deps Deps) *Controller {
	cfg = cfg.withDefaults()
	if deps.Health == nil {
		deps.Health = scoring.NewAnalyzer(deps.Bus)
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		pipeline: Pipeline{
			Solver:        deps.Solver,
			Stabling:      deps.Stabling,
			Health:        deps.Health,
			BaselineMoves: cfg.BaselineMoves,
		},
		logger: log.WithComponent("cycle"),
		tracer: telemetry.Tracer("inductd.cycle"),
		now:    time.Now,
	}
}

// Depot returns the depot this controller plans for.
func (c *Controller) Depot() string { return c.cfg.Depot }

// Limits returns the configured nightly bounds.
func (c *Controller) Limits() repair.Limits {
	return repair.Limits{MinService: c.cfg.MinService, MaxMaintenance: c.cfg.MaxMaintenance}
}

// runSpec parameterizes one cycle. Zero at means the controller clock;
// nil limits mean the configured and schedule-derived bounds.
type runSpec struct {
	mode       string
	solverMode solver.Mode
	trigger    string
	at         time.Time
	limits     *repair.Limits
}

// RunNightly executes the full ensemble cycle that fixes the next
// service day.
func (c *Controller) RunNightly(ctx context.Context) (*model.InductionPlan, error) {
	return c.gated(ctx, runSpec{mode: modeNightly, trigger: "schedule.nightly"})
}

// RunNightlyAt plans for a caller-chosen instant with optional
// constraint overrides: the operator-driven variant of the nightly run.
func (c *Controller) RunNightlyAt(ctx context.Context, at time.Time, lim *repair.Limits) (*model.InductionPlan, error) {
	return c.gated(ctx, runSpec{mode: modeNightly, trigger: "operator.nightly", at: at, limits: lim})
}

// RunRealtime executes a fast-mode cycle in reaction to a fleet or
// demand change. reason tags the trigger in events and traces.
func (c *Controller) RunRealtime(ctx context.Context, reason string) (*model.InductionPlan, error) {
	return c.gated(ctx, runSpec{mode: modeRealtime, solverMode: solver.ModeFast, trigger: reason})
}

// Current returns the newest plan for a depot, serving the cache first
// and re-warming it from the store on a miss. An empty depot means the
// controller's own.
func (c *Controller) Current(ctx context.Context, depot string) (*model.InductionPlan, error) {
	if depot == "" {
		depot = c.cfg.Depot
	}
	if plan, ok := c.deps.Cache.Get(depot); ok {
		return plan, nil
	}
	plan, err := c.deps.Plans.Current(ctx, depot)
	if err != nil {
		return nil, err
	}
	c.deps.Cache.Set(depot, plan, c.cfg.CacheTTL)
	return plan, nil
}

// TagRevised marks a plan rewritten by a manual decision override.
const TagRevised = "REVISED"

// Override rewrites one decision of a stored plan and persists the
// result as a new revision. The base plan stays untouched under its own
// ID; the revision becomes the depot's current plan and is announced on
// plan.completed with phase "revised". A cycle committing afterwards
// supersedes the revision like any other plan.
func (c *Controller) Override(ctx context.Context, planID, trainsetID string, label model.DecisionLabel, authorizedBy string) (*model.InductionPlan, *model.Decision, error) {
	if authorizedBy == "" {
		return nil, nil, ErrUnauthorized
	}
	if !model.ValidLabel(label) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	rev, err := c.deps.Plans.Get(ctx, planID)
	if err != nil {
		return nil, nil, err
	}
	d := rev.Decision(trainsetID)
	if d == nil {
		return nil, nil, fmt.Errorf("%w: %q in plan %s", ErrUnknownTrainset, trainsetID, planID)
	}

	now := c.now()
	prev := d.Label
	d.Label = label
	d.Reasons = append(d.Reasons, fmt.Sprintf("manual override by %s: %s to %s", authorizedBy, prev, label))
	rev.ID = c.nextPlanID(now)
	rev.GeneratedAt = now
	rev.Tags = append(rev.Tags, TagRevised)

	if err := c.deps.Plans.Put(ctx, rev); err != nil {
		return nil, nil, fmt.Errorf("persist revision: %w", err)
	}
	c.deps.Cache.Set(c.cfg.Depot, rev, c.cfg.CacheTTL)
	if c.deps.Export != nil {
		if err := c.deps.Export.Write(rev); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldPlanID, rev.ID).Msg("cycle.export")
		}
	}
	c.publish(ctx, model.TopicPlanCompleted, model.PlanEvent{
		PlanID:   rev.ID,
		Progress: 100,
		Phase:    "revised",
		Cause:    fmt.Sprintf("manual override by %s", authorizedBy),
		LastGood: planID,
	})
	metrics.SetPlanGauges(rev.Confidence, rev.CountLabel(model.LabelInService))

	if err := c.deps.Feedback.Append(ctx, feedback.Record{
		PlanID:      planID,
		TrainsetID:  trainsetID,
		AILabel:     prev,
		ActualLabel: label,
		Supervisor:  authorizedBy,
		Reason:      "manual override",
	}); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldPlanID, planID).Msg("cycle.feedback")
	}

	c.logger.Info().
		Str(log.FieldPlanID, rev.ID).
		Str("base_plan", planID).
		Str(log.FieldTrainsetID, trainsetID).
		Str(log.FieldLabel, string(label)).
		Str("authorized_by", authorizedBy).
		Msg("cycle.override")
	return rev, d, nil
}

func (c *Controller) gated(ctx context.Context, spec runSpec) (*model.InductionPlan, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer c.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.runCycle(ctx, spec)
}

func (c *Controller) runCycle(ctx context.Context, spec runSpec) (*model.InductionPlan, error) {
	started := c.now()
	at := spec.at
	if at.IsZero() {
		at = started
	}
	mode := spec.mode
	ctx, span := c.tracer.Start(ctx, "inductd.cycle.run", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(telemetry.CycleAttributes(c.cfg.Depot, mode, spec.trigger)...)

	planID := c.nextPlanID(at)
	c.logger.Info().
		Str(log.FieldPlanID, planID).
		Str(log.FieldDepot, c.cfg.Depot).
		Str("mode", mode).
		Str("trigger", spec.trigger).
		Msg("cycle.started")
	c.publish(ctx, model.TopicPlanStarted, model.PlanEvent{PlanID: planID, Progress: 0, Phase: "started"})

	snap, err := c.deps.Fleet.Snapshot(ctx)
	if err != nil {
		return nil, c.failed(ctx, span, planID, mode, started, fmt.Errorf("snapshot: %w", err))
	}

	lim := c.limitsFor(mode, at)
	if spec.limits != nil {
		if spec.limits.MinService > 0 {
			lim.MinService = spec.limits.MinService
		}
		if spec.limits.MaxMaintenance > 0 {
			lim.MaxMaintenance = spec.limits.MaxMaintenance
		}
	}
	onPhase := func(phase string, progress int) {
		c.publish(ctx, model.TopicPlanProgress, model.PlanEvent{PlanID: planID, Progress: progress, Phase: phase})
	}
	plan, err := c.pipeline.Execute(ctx, &snap, spec.solverMode, lim, at, onPhase)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.cancelled(ctx, span, planID, mode, started)
		}
		return nil, c.failed(ctx, span, planID, mode, started, err)
	}
	plan.ID = planID

	// The compute phase owns the deadline; once a plan exists it is
	// committed even if the deadline lapsed during assembly.
	commitCtx := context.WithoutCancel(ctx)
	if err := c.deps.Plans.Put(commitCtx, plan); err != nil {
		return nil, c.failed(ctx, span, planID, mode, started, fmt.Errorf("persist: %w", err))
	}
	c.deps.Cache.Set(c.cfg.Depot, plan, c.cfg.CacheTTL)
	if c.deps.Export != nil {
		if err := c.deps.Export.Write(plan); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldPlanID, planID).Msg("cycle.export")
		}
	}
	c.publish(commitCtx, model.TopicPlanProgress, model.PlanEvent{PlanID: planID, Progress: 100, Phase: "published"})
	c.publish(commitCtx, model.TopicPlanCompleted, model.PlanEvent{PlanID: planID, Progress: 100, Phase: "completed"})

	service := plan.CountLabel(model.LabelInService)
	result := "completed"
	if plan.Infeasible {
		result = "infeasible"
	}
	metrics.RecordPlan(result)
	metrics.SetPlanGauges(plan.Confidence, service)
	metrics.ObserveCycleDuration(mode, c.now().Sub(started).Seconds())
	span.SetAttributes(telemetry.PlanAttributes(planID, len(plan.Decisions), service, plan.Confidence, plan.Infeasible)...)

	c.logger.Info().
		Str(log.FieldPlanID, planID).
		Str(log.FieldDepot, c.cfg.Depot).
		Str("mode", mode).
		Int("service", service).
		Float64("confidence", plan.Confidence).
		Bool("infeasible", plan.Infeasible).
		Dur("took", c.now().Sub(started)).
		Msg("cycle.completed")
	return plan, nil
}

// limitsFor resolves the hard bounds for a run. Realtime cycles follow
// the active demand window; the nightly run keeps the contractual floor.
func (c *Controller) limitsFor(mode string, at time.Time) repair.Limits {
	lim := repair.Limits{MinService: c.cfg.MinService, MaxMaintenance: c.cfg.MaxMaintenance}
	if mode == modeRealtime && c.deps.Schedule != nil {
		if w, ok := c.deps.Schedule.Active(at); ok {
			lim.MinService = w.MinService
		}
	}
	return lim
}

func (c *Controller) failed(ctx context.Context, span trace.Span, planID, mode string, started time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.RecordPlan("failed")
	metrics.ObserveCycleDuration(mode, c.now().Sub(started).Seconds())

	lookupCtx := context.WithoutCancel(ctx)
	evt := model.PlanEvent{PlanID: planID, Phase: "failed", Cause: err.Error()}
	if prev, perr := c.deps.Plans.Current(lookupCtx, c.cfg.Depot); perr == nil {
		evt.LastGood = prev.ID
	}
	c.publish(lookupCtx, model.TopicPlanFailed, evt)
	c.logger.Error().Err(err).Str(log.FieldPlanID, planID).Str("mode", mode).Msg("cycle.failed")
	return err
}

func (c *Controller) cancelled(ctx context.Context, span trace.Span, planID, mode string, started time.Time) error {
	err := ctx.Err()
	cause := "cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		cause = "timeout"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, cause)
	metrics.RecordPlan("cancelled")
	metrics.ObserveCycleDuration(mode, c.now().Sub(started).Seconds())

	lookupCtx := context.WithoutCancel(ctx)
	evt := model.PlanEvent{PlanID: planID, Phase: "cancelled", Cause: cause}
	if prev, perr := c.deps.Plans.Current(lookupCtx, c.cfg.Depot); perr == nil {
		evt.LastGood = prev.ID
	}
	c.publish(lookupCtx, model.TopicPlanCancelled, evt)
	c.logger.Warn().Str(log.FieldPlanID, planID).Str("mode", mode).Str("cause", cause).Msg("cycle.cancelled")
	return err
}

// publish stamps depot and time onto the event; delivery failures are
// logged, never propagated into the cycle result.
func (c *Controller) publish(ctx context.Context, topic string, evt model.PlanEvent) {
	evt.Depot = c.cfg.Depot
	evt.At = c.now().UTC()
	if err := c.deps.Bus.Publish(ctx, topic, evt); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldTopic, topic).Str(log.FieldPlanID, evt.PlanID).Msg("cycle.publish")
	}
}

// nextPlanID builds "depot|ISO instant|sequence" identifiers; the
// sequence disambiguates runs inside one second.
func (c *Controller) nextPlanID(at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", c.cfg.Depot, at.UTC().Format(time.RFC3339), c.seq.Add(1))
}
