// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"math"
	"sort"

	"github.com/ManuGH/inductd/internal/model"
)

// Weights the fast scorer applies to its heuristic terms.
const (
	fastFitnessWeight  = 0.05
	fastJobWeight      = 0.10
	fastMileageWeight  = 0.05
	fastBrandingWeight = 0.10
	fastPositionWeight = 0.05
)

// solveFast ranks every trainset with a single-pass heuristic and
// assigns labels straight off the ranking. No randomness, no search.
func solveFast(p *Problem) Outcome {
	n := len(p.Snapshot.Trainsets)
	out := Outcome{Algorithm: "fast"}
	if n == 0 {
		return out
	}

	mean := p.Snapshot.MeanMileage()
	bayPosition := make(map[string]int, len(p.Snapshot.Bays))
	for _, b := range p.Snapshot.Bays {
		bayPosition[b.ID] = b.Position
	}

	scores := make([]float64, n)
	for i := range p.Snapshot.Trainsets {
		scores[i] = fastScore(&p.Snapshot.Trainsets[i], mean, bayPosition)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return p.Snapshot.Trainsets[order[a]].ID < p.Snapshot.Trainsets[order[b]].ID
	})

	labels := make([]model.DecisionLabel, n)
	for i := range labels {
		labels[i] = model.LabelStandby
	}

	maintenance := 0
	for i := range p.Snapshot.Trainsets {
		if p.Snapshot.Trainsets[i].HasEmergencyJob() {
			labels[i] = model.LabelEmergencyRepair
			maintenance++
		}
	}

	service := 0
	for _, idx := range order {
		if service >= p.MinService {
			break
		}
		if labels[idx] == model.LabelStandby && p.Snapshot.Trainsets[idx].ServiceFit() {
			labels[idx] = model.LabelInService
			service++
		}
	}

	for _, idx := range order {
		if maintenance >= p.MaxMaintenance {
			break
		}
		if labels[idx] == model.LabelStandby && len(p.Snapshot.Trainsets[idx].OpenJobs) > 0 {
			labels[idx] = model.LabelMaintenance
			maintenance++
		}
	}

	out.Labels = labels
	out.Score = fitness(p, labels)
	return out
}

// fastScore is the legacy direct scorer: flat base, a heavy certificate
// term, high-priority job and mileage-balance corrections, branding
// shortfall and a near-exit position bonus.
func fastScore(t *model.Trainset, meanMileage float64, bayPosition map[string]int) float64 {
	s := 100.0

	if t.ServiceFit() {
		s += 1000 * fastFitnessWeight
	} else {
		s -= 1000 * fastFitnessWeight
	}

	high := 0
	for _, j := range t.OpenJobs {
		if j.Priority == model.PriorityEmergency || j.Priority == model.PriorityHigh {
			high++
		}
	}
	s -= 500 * fastJobWeight * float64(high)

	if meanMileage > 0 {
		diff := math.Abs(float64(t.MileageKM) - meanMileage)
		s += math.Max(0, 100-diff/1000) * fastMileageWeight
	}

	if t.Branding != nil {
		shortfall := 1 - t.Branding.Compliance()
		s += shortfall * 10 * 20 * fastBrandingWeight
	}

	if pos, ok := bayPosition[t.CurrentBay]; ok && t.CurrentBay != "" {
		s += math.Max(0, 50-2*float64(pos)) * fastPositionWeight
	}

	return s
}
