// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
)

// Ensemble runs the configured algorithms and merges their labelings.
type Ensemble struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

func New(opts Options) *Ensemble {
	return &Ensemble{
		opts:   opts.withDefaults(),
		logger: log.WithComponent("solver"),
		now:    time.Now,
	}
}

// Solve labels every trainset in the snapshot. An empty mode falls back
// to the configured one; ModeFast bypasses the ensemble entirely.
func (e *Ensemble) Solve(ctx context.Context, p *Problem, mode Mode) (*Result, error) {
	if mode == "" {
		mode = e.opts.Mode
	}
	if len(p.Coefficients) != len(p.Snapshot.Trainsets) {
		return nil, fmt.Errorf("solver: %d coefficients for %d trainsets",
			len(p.Coefficients), len(p.Snapshot.Trainsets))
	}

	if mode == ModeFast {
		started := e.now()
		out := solveFast(p)
		out.Duration = e.now().Sub(started)
		metrics.ObserveSolverDuration(out.Algorithm, out.Duration.Seconds())
		e.logger.Info().
			Str("mode", string(ModeFast)).
			Float64("score", out.Score).
			Int("trainsets", len(out.Labels)).
			Msg("solver.done")
		return &Result{Mode: ModeFast, Labels: out.Labels, Outcomes: []Outcome{out}}, nil
	}

	seed := e.opts.Seed
	if seed == 0 {
		seed = e.now().UnixNano()
	}

	var ga, sa, lp Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ga, err = e.timed(gctx, func(ctx context.Context) (Outcome, error) {
			return solveGA(ctx, p, e.opts, rand.New(rand.NewSource(seed)))
		})
		return err
	})
	g.Go(func() error {
		var err error
		sa, err = e.timed(gctx, func(ctx context.Context) (Outcome, error) {
			return solveSA(ctx, p, e.opts, rand.New(rand.NewSource(seed+1)))
		})
		return err
	})
	g.Go(func() error {
		var err error
		lp, err = e.timed(gctx, func(ctx context.Context) (Outcome, error) {
			return solveLP(ctx, p)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcomes := []Outcome{ga, sa, lp}
	weights := []float64{e.opts.WeightGA, e.opts.WeightSA, e.opts.WeightLP}
	labels := vote(len(p.Snapshot.Trainsets), outcomes, weights)

	e.logger.Info().
		Str("mode", string(ModeEnsemble)).
		Int64("seed", seed).
		Float64("ga", ga.Score).
		Float64("sa", sa.Score).
		Float64("lp", lp.Score).
		Msg("solver.done")

	return &Result{Mode: ModeEnsemble, Labels: labels, Outcomes: outcomes, Seed: seed}, nil
}

func (e *Ensemble) timed(ctx context.Context, fn func(context.Context) (Outcome, error)) (Outcome, error) {
	started := e.now()
	out, err := fn(ctx)
	out.Duration = e.now().Sub(started)
	metrics.ObserveSolverDuration(out.Algorithm, out.Duration.Seconds())
	return out, err
}

// voteOrder fixes the tie-break: safety-critical labels first.
var voteOrder = []model.DecisionLabel{
	model.LabelEmergencyRepair,
	model.LabelMaintenance,
	model.LabelInService,
	model.LabelStandby,
}

// vote merges labelings by weighted per-trainset majority. Score ties
// resolve toward the safer label.
func vote(n int, outs []Outcome, weights []float64) []model.DecisionLabel {
	labels := make([]model.DecisionLabel, n)
	for i := 0; i < n; i++ {
		acc := make([]float64, len(voteOrder))
		var voted bool
		for k := range outs {
			if i >= len(outs[k].Labels) {
				continue
			}
			for vi, v := range voteOrder {
				if v == outs[k].Labels[i] {
					acc[vi] += weights[k]
					voted = true
					break
				}
			}
		}
		if !voted {
			labels[i] = model.LabelStandby
			continue
		}
		best := 0
		for vi := 1; vi < len(acc); vi++ {
			if acc[vi] > acc[best]+lpEpsilon {
				best = vi
			}
		}
		labels[i] = voteOrder[best]
	}
	return labels
}
