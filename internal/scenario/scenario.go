// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scenario replays planning against hypothetical fleet states:
// field patches applied to a copy of the live snapshot, run through the
// full pipeline with nothing persisted and nothing published.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/inductd/internal/cycle"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/scoring"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
)

// ErrInvalidPatch reports a patch naming an unknown trainset, an unknown
// field or a value outside the field's domain.
var ErrInvalidPatch = errors.New("invalid scenario patch")

// Patch overrides selected fields of one trainset for a simulation run.
// Field names follow the trainset JSON schema; the patchable set is
// status, cleared, fitnessScore, mileageKm and energyKwh.
type Patch struct {
	TrainsetID     string         `json:"trainsetId"`
	FieldOverrides map[string]any `json:"fieldOverrides"`
}

// Simulator runs what-if plans. It owns its pipeline, built around a
// health analyzer that publishes nowhere, so hypothetical fleet states
// never raise live alerts.
type Simulator struct {
	pipe cycle.Pipeline
}

// New builds a simulator sharing the production solver and stabling
// optimizer.
func New(sol *solver.Ensemble, opt *stabling.Optimizer, baselineMoves int) *Simulator {
	return &Simulator{pipe: cycle.Pipeline{
		Solver:        sol,
		Stabling:      opt,
		Health:        scoring.NewAnalyzer(nil),
		BaselineMoves: baselineMoves,
	}}
}

// Simulate applies the patches to a copy of snap and plans against the
// result. The returned plan carries no ID and is never persisted; the
// planning instant is the snapshot's, so the outcome stays comparable
// with the plan built from the unpatched state.
func (s *Simulator) Simulate(ctx context.Context, snap *model.FleetSnapshot, patches []Patch, lim repair.Limits) (*model.InductionPlan, error) {
	work := snap.Clone()
	for _, p := range patches {
		ts := work.Trainset(p.TrainsetID)
		if ts == nil {
			return nil, fmt.Errorf("%w: unknown trainset %q", ErrInvalidPatch, p.TrainsetID)
		}
		if err := applyOverrides(ts, p.FieldOverrides); err != nil {
			return nil, err
		}
	}
	plan, err := s.pipe.Execute(ctx, &work, "", lim, work.TakenAt, nil)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	return plan, nil
}

func applyOverrides(ts *model.Trainset, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no field overrides for %s", ErrInvalidPatch, ts.ID)
	}
	for name, raw := range fields {
		switch name {
		case "status":
			s, ok := raw.(string)
			if !ok || !model.ValidStatus(model.TrainsetStatus(s)) {
				return fmt.Errorf("%w: status %v", ErrInvalidPatch, raw)
			}
			ts.Status = model.TrainsetStatus(s)
		case "cleared":
			b, ok := raw.(bool)
			if !ok {
				return fmt.Errorf("%w: cleared wants a bool, got %T", ErrInvalidPatch, raw)
			}
			ts.Cleared = b
		case "fitnessScore":
			f, ok := toFloat(raw)
			if !ok || f < 0 || f > 10 {
				return fmt.Errorf("%w: fitnessScore %v outside [0,10]", ErrInvalidPatch, raw)
			}
			ts.FitnessScore = f
		case "mileageKm":
			f, ok := toFloat(raw)
			if !ok || f < 0 {
				return fmt.Errorf("%w: mileageKm %v", ErrInvalidPatch, raw)
			}
			ts.MileageKM = int64(f)
		case "energyKwh":
			f, ok := toFloat(raw)
			if !ok || f < 0 {
				return fmt.Errorf("%w: energyKwh %v", ErrInvalidPatch, raw)
			}
			ts.EnergyKWh = f
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidPatch, name)
		}
	}
	return nil
}

// toFloat accepts the numeric types a JSON decode or a Go caller hands in.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
