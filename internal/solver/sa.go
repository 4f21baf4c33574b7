// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"context"
	"math"
	"math/rand"

	"github.com/ManuGH/inductd/internal/model"
)

// solveSA anneals a single labeling with one-gene neighbor moves. Worse
// neighbors are accepted with probability exp(-delta/T) so early steps
// can escape local optima; the geometric cooling schedule bounds the
// walk length.
func solveSA(ctx context.Context, p *Problem, opt Options, rng *rand.Rand) (Outcome, error) {
	n := len(p.Snapshot.Trainsets)
	out := Outcome{Algorithm: "sa"}
	if n == 0 {
		return out, nil
	}

	allowed := make([][]model.DecisionLabel, n)
	for i := range p.Snapshot.Trainsets {
		allowed[i] = allowedLabels(&p.Snapshot.Trainsets[i])
	}

	current := randomLabels(rng, allowed)
	currentE := energy(p, current)
	best := append([]model.DecisionLabel(nil), current...)
	bestE := currentE

	for temp := opt.InitialTemp; temp > opt.MinTemp; temp *= opt.Cooling {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		i := rng.Intn(n)
		prev := current[i]
		current[i] = allowed[i][rng.Intn(len(allowed[i]))]

		e := energy(p, current)
		delta := e - currentE
		if delta < 0 || rng.Float64() < math.Exp(-delta/temp) {
			currentE = e
			if currentE < bestE {
				bestE = currentE
				copy(best, current)
			}
		} else {
			current[i] = prev
		}
	}

	out.Labels = best
	out.Score = fitness(p, best)
	return out, nil
}
