// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/ManuGH/inductd/internal/model"
)

// solveGA evolves label vectors under tournament selection with
// single-point crossover, per-gene mutation and elitism.
func solveGA(ctx context.Context, p *Problem, opt Options, rng *rand.Rand) (Outcome, error) {
	n := len(p.Snapshot.Trainsets)
	out := Outcome{Algorithm: "ga"}
	if n == 0 {
		return out, nil
	}

	allowed := make([][]model.DecisionLabel, n)
	for i := range p.Snapshot.Trainsets {
		allowed[i] = allowedLabels(&p.Snapshot.Trainsets[i])
	}

	pop := make([][]model.DecisionLabel, opt.Population)
	for i := range pop {
		pop[i] = randomLabels(rng, allowed)
	}
	scores := make([]float64, opt.Population)
	order := make([]int, opt.Population)

	best := append([]model.DecisionLabel(nil), pop[0]...)
	bestScore := math.Inf(-1)

	elite := int(float64(opt.Population) * opt.ElitismRatio)
	if elite < 1 {
		elite = 1
	}

	for gen := 0; gen <= opt.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for i := range pop {
			scores[i] = fitness(p, pop[i])
			if scores[i] > bestScore {
				bestScore = scores[i]
				copy(best, pop[i])
			}
		}
		if gen == opt.Generations {
			break
		}

		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

		next := make([][]model.DecisionLabel, 0, opt.Population)
		for _, idx := range order[:elite] {
			next = append(next, append([]model.DecisionLabel(nil), pop[idx]...))
		}
		for len(next) < opt.Population {
			a := tournament(rng, scores, opt.TournamentSize)
			b := tournament(rng, scores, opt.TournamentSize)
			child := crossover(rng, pop[a], pop[b], opt.CrossoverRate)
			mutate(rng, child, allowed, opt.MutationRate)
			next = append(next, child)
		}
		pop = next
	}

	out.Labels = best
	out.Score = bestScore
	return out, nil
}

func randomLabels(rng *rand.Rand, allowed [][]model.DecisionLabel) []model.DecisionLabel {
	g := make([]model.DecisionLabel, len(allowed))
	for i, set := range allowed {
		g[i] = set[rng.Intn(len(set))]
	}
	return g
}

// tournament returns the fittest of k uniformly drawn individuals.
func tournament(rng *rand.Rand, scores []float64, k int) int {
	best := rng.Intn(len(scores))
	for i := 1; i < k; i++ {
		c := rng.Intn(len(scores))
		if scores[c] > scores[best] {
			best = c
		}
	}
	return best
}

// crossover splices two parents at a single point, or clones the first
// parent when the dice say no.
func crossover(rng *rand.Rand, a, b []model.DecisionLabel, rate float64) []model.DecisionLabel {
	child := append([]model.DecisionLabel(nil), a...)
	if len(a) > 1 && rng.Float64() < rate {
		cut := 1 + rng.Intn(len(a)-1)
		copy(child[cut:], b[cut:])
	}
	return child
}

func mutate(rng *rand.Rand, g []model.DecisionLabel, allowed [][]model.DecisionLabel, rate float64) {
	for i := range g {
		if rng.Float64() < rate {
			g[i] = allowed[i][rng.Intn(len(allowed[i]))]
		}
	}
}
