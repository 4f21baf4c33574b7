// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cycle orchestrates induction runs: snapshot, scoring, the
// solver ensemble, constraint repair, stabling and publication. The
// controller serializes runs, enforces the cycle deadline and keeps the
// plan store, cache and export mirror consistent; the pipeline
// underneath is pure and shared with what-if simulation.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/scoring"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
	"github.com/ManuGH/inductd/internal/telemetry"
)

// TagInfeasible marks a plan whose constraints could not be fully
// repaired. The individual violations ride along as further tags.
const TagInfeasible = "INFEASIBLE"

// Pipeline is the pure snapshot-to-plan path. It persists nothing, and
// publishes nothing itself, so simulation can run it against patched
// snapshots without side effects.
type Pipeline struct {
	Solver        *solver.Ensemble
	Stabling      *stabling.Optimizer
	Health        *scoring.Analyzer
	BaselineMoves int
}

// Execute turns one snapshot into a full induction plan. The returned
// plan carries no ID; the caller stamps identity and owns persistence.
// onPhase, when non-nil, observes pipeline progress.
func (p *Pipeline) Execute(ctx context.Context, snap *model.FleetSnapshot, mode solver.Mode, lim repair.Limits, now time.Time, onPhase func(phase string, progress int)) (*model.InductionPlan, error) {
	if len(snap.Trainsets) == 0 {
		// Nothing to induct: an empty plan, fully confident.
		return &model.InductionPlan{
			Depot:       snap.Depot,
			GeneratedAt: now,
			Confidence:  1,
			Metrics: model.PlanMetrics{
				BrandingCompliance:   1,
				PredictedPunctuality: basePunctuality,
			},
		}, nil
	}

	coeffs := scoring.Vector(snap)
	conditions := p.Health.Conditions(ctx, snap)
	step(onPhase, "scored", 10)

	tracer := telemetry.Tracer("inductd.cycle")
	sctx, span := tracer.Start(ctx, "inductd.cycle.solve")
	res, err := p.Solver.Solve(sctx, &solver.Problem{
		Snapshot:       snap,
		Coefficients:   coeffs,
		MinService:     lim.MinService,
		MaxMaintenance: lim.MaxMaintenance,
		Now:            now,
	}, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, fmt.Errorf("solve: %w", err)
	}
	span.SetAttributes(telemetry.SolverAttributes(string(res.Mode), res.Seed, len(res.Outcomes))...)
	span.End()
	step(onPhase, "solved", 40)

	decisions := buildDecisions(snap, res.Labels, coeffs)
	repaired, repErr := repair.Run(decisions, snap, lim, now)
	infeasible := false
	switch {
	case repErr == nil:
	case errors.Is(repErr, repair.ErrUnresolvable):
		infeasible = true
	default:
		return nil, fmt.Errorf("repair: %w", repErr)
	}

	arranged, err := p.Stabling.Arrange(decisions, snap)
	if err != nil {
		return nil, fmt.Errorf("arrange: %w", err)
	}
	step(onPhase, "arranged", 80)

	plan := &model.InductionPlan{
		Depot:       snap.Depot,
		GeneratedAt: now,
		Decisions:   decisions,
		Moves:       arranged.Moves,
		WaveCount:   arranged.WaveCount,
		Metrics:     buildMetrics(snap, decisions, conditions, arranged, lim, p.BaselineMoves),
		Confidence:  confidence(snap, decisions, res.Outcomes, lim, infeasible),
		Infeasible:  infeasible,
		SolverMode:  string(res.Mode),
	}
	if infeasible {
		plan.Tags = append(plan.Tags, TagInfeasible)
		plan.Tags = append(plan.Tags, repaired.Violations...)
	}
	return plan, nil
}

func step(onPhase func(string, int), phase string, progress int) {
	if onPhase != nil {
		onPhase(phase, progress)
	}
}

// buildDecisions pairs each solver label with its objective score and a
// first reason where the unit's own state forces the label.
func buildDecisions(snap *model.FleetSnapshot, labels []model.DecisionLabel, coeffs []float64) []model.Decision {
	decisions := make([]model.Decision, len(labels))
	for i := range labels {
		ts := &snap.Trainsets[i]
		d := model.Decision{TrainsetID: ts.ID, Label: labels[i], Score: coeffs[i]}
		switch {
		case labels[i] == model.LabelEmergencyRepair && ts.HasEmergencyJob():
			d.Reasons = append(d.Reasons, "open emergency job card")
		case labels[i] == model.LabelMaintenance && !ts.Cleared:
			d.Reasons = append(d.Reasons, "no valid clearance for revenue service")
		case labels[i] == model.LabelMaintenance && !ts.ServiceFit():
			d.Reasons = append(d.Reasons, "fitness score below service minimum")
		}
		decisions[i] = d
	}
	return decisions
}
