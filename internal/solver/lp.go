// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ManuGH/inductd/internal/model"
)

const (
	lpEpsilon = 1e-9
	lpBigM    = 1e6
)

// solveLP relaxes induction to N continuous variables in [0,1] and runs
// a dense Big-M simplex: service floor, maintenance cap and a bound on
// soon-expiring certificates are the hard rows. An infeasible tableau
// degrades to a greedy labeling instead of failing the cycle.
func solveLP(ctx context.Context, p *Problem) (Outcome, error) {
	n := len(p.Snapshot.Trainsets)
	out := Outcome{Algorithm: "lp"}
	if n == 0 {
		return out, nil
	}

	jobbed := make([]bool, n)
	expiring := make([]bool, n)
	for i := range p.Snapshot.Trainsets {
		t := &p.Snapshot.Trainsets[i]
		jobbed[i] = len(t.OpenJobs) > 0
		if exp := t.EarliestFitnessExpiry(); !exp.IsZero() {
			expiring[i] = exp.Sub(p.Now) < 7*24*time.Hour
		}
	}

	x, feasible, err := simplex(ctx, p.Coefficients, jobbed, expiring, p.MinService, p.MaxMaintenance)
	if err != nil {
		return out, err
	}
	if !feasible {
		x = greedyRelaxation(p)
	}

	labels := make([]model.DecisionLabel, n)
	for i := range labels {
		labels[i] = lpLabel(x[i], &p.Snapshot.Trainsets[i])
	}
	out.Labels = labels
	out.Score = fitness(p, labels)
	return out, nil
}

// lpLabel maps a relaxed variable to a decision label. Units that fail
// the service gate never round up into revenue service, however high the
// relaxation pushed them.
func lpLabel(x float64, t *model.Trainset) model.DecisionLabel {
	switch {
	case x > 0.7 && t.ServiceFit():
		return model.LabelInService
	case x > 0.3:
		return model.LabelStandby
	case t.HasEmergencyJob():
		return model.LabelEmergencyRepair
	default:
		return model.LabelMaintenance
	}
}

// greedyRelaxation is the fallback when the tableau has no feasible
// vertex: serve the strongest coefficients up to the floor.
func greedyRelaxation(p *Problem) []float64 {
	n := len(p.Coefficients)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p.Coefficients[order[a]] > p.Coefficients[order[b]] })

	x := make([]float64, n)
	for rank, idx := range order {
		if rank >= p.MinService {
			break
		}
		if c := p.Coefficients[idx]; !math.IsNaN(c) && c > 0 {
			x[idx] = 1
		}
	}
	return x
}

// simplex maximizes c·x subject to Σx ≥ minService, Σ[jobbed]x ≤
// maxMaintenance, Σ[expiring]x ≤ 5 and 0 ≤ x ≤ 1. The ≥ row carries a
// Big-M artificial; if it is still basic at the end the instance is
// infeasible. Entering column by most negative reduced cost, leaving
// row by minimum ratio.
func simplex(ctx context.Context, coeffs []float64, jobbed, expiring []bool, minService, maxMaintenance int) ([]float64, bool, error) {
	n := len(coeffs)

	rows := 3 + n
	// columns: n variables, surplus, 2 slacks, n bound slacks,
	// artificial, RHS
	cols := n + 3 + n + 2
	artCol := cols - 2
	rhsCol := cols - 1

	tab := make([][]float64, rows)
	for r := range tab {
		tab[r] = make([]float64, cols)
	}
	basis := make([]int, rows)

	// service floor: Σx − surplus + artificial = minService
	for j := 0; j < n; j++ {
		tab[0][j] = 1
	}
	tab[0][n] = -1
	tab[0][artCol] = 1
	tab[0][rhsCol] = float64(minService)
	basis[0] = artCol

	// maintenance cap: Σ[jobbed]x + slack = maxMaintenance
	for j := 0; j < n; j++ {
		if jobbed[j] {
			tab[1][j] = 1
		}
	}
	tab[1][n+1] = 1
	tab[1][rhsCol] = float64(maxMaintenance)
	basis[1] = n + 1

	// expiry cap: Σ[expiring]x + slack = 5
	for j := 0; j < n; j++ {
		if expiring[j] {
			tab[2][j] = 1
		}
	}
	tab[2][n+2] = 1
	tab[2][rhsCol] = 5
	basis[2] = n + 2

	// bounds: x_j + slack = 1
	for j := 0; j < n; j++ {
		r := 3 + j
		tab[r][j] = 1
		tab[r][n+3+j] = 1
		tab[r][rhsCol] = 1
		basis[r] = n + 3 + j
	}

	// reduced-cost row; the artificial is priced out against its row
	obj := make([]float64, cols)
	for j := 0; j < n; j++ {
		c := coeffs[j]
		if math.IsNaN(c) || math.IsInf(c, 0) {
			c = -lpBigM // never worth serving
		}
		obj[j] = -c
	}
	obj[artCol] = lpBigM
	for j := 0; j < cols; j++ {
		obj[j] -= lpBigM * tab[0][j]
	}

	maxPivots := 100 + 20*n
	for pivots := 0; pivots < maxPivots; pivots++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		enter := -1
		for j := 0; j < rhsCol; j++ {
			if j == artCol {
				continue // once out, never back in
			}
			if obj[j] < -lpEpsilon && (enter < 0 || obj[j] < obj[enter]) {
				enter = j
			}
		}
		if enter < 0 {
			break // optimal
		}

		leave := -1
		ratio := math.Inf(1)
		for r := 0; r < rows; r++ {
			if tab[r][enter] > lpEpsilon {
				if q := tab[r][rhsCol] / tab[r][enter]; q < ratio-lpEpsilon {
					ratio = q
					leave = r
				}
			}
		}
		if leave < 0 {
			break // unbounded direction; keep the current vertex
		}

		pivot(tab, obj, leave, enter)
		basis[leave] = enter
	}

	x := make([]float64, n)
	feasible := true
	for r, col := range basis {
		v := tab[r][rhsCol]
		if col < n {
			x[col] = v
		}
		if col == artCol && v > lpEpsilon {
			feasible = false
		}
	}
	return x, feasible, nil
}

// pivot normalizes the pivot row and eliminates the entering column
// from every other row including the objective.
func pivot(tab [][]float64, obj []float64, leave, enter int) {
	row := tab[leave]
	div := row[enter]
	for j := range row {
		row[j] /= div
	}
	for r := range tab {
		if r == leave {
			continue
		}
		if f := tab[r][enter]; f != 0 {
			for j := range tab[r] {
				tab[r][j] -= f * row[j]
			}
		}
	}
	if f := obj[enter]; f != 0 {
		for j := range obj {
			obj[j] -= f * row[j]
		}
	}
}
