// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package solver chooses induction labels for the fleet. Three
// algorithms run in parallel on the same immutable snapshot: a genetic
// algorithm, simulated annealing and an LP relaxation, merged by a
// weighted per-trainset vote. A single-pass fast mode serves
// short-deadline monitoring cycles.
package solver

import (
	"math"
	"time"

	"github.com/ManuGH/inductd/internal/model"
)

// Mode selects the solving strategy.
type Mode string

const (
	ModeEnsemble Mode = "ensemble"
	ModeFast     Mode = "fast"
)

// Options tunes the ensemble. Zero values fall back to the nightly
// defaults.
type Options struct {
	Mode           Mode
	Population     int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	TournamentSize int
	ElitismRatio   float64
	InitialTemp    float64
	Cooling        float64
	MinTemp        float64
	WeightGA       float64
	WeightSA       float64
	WeightLP       float64
	Seed           int64 // 0 derives the seed from the clock per solve
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeEnsemble
	}
	if o.Population <= 0 {
		o.Population = 100
	}
	if o.Generations <= 0 {
		o.Generations = 50
	}
	if o.MutationRate <= 0 {
		o.MutationRate = 0.10
	}
	if o.CrossoverRate <= 0 {
		o.CrossoverRate = 0.70
	}
	if o.TournamentSize <= 0 {
		o.TournamentSize = 5
	}
	if o.ElitismRatio <= 0 {
		o.ElitismRatio = 0.10
	}
	if o.InitialTemp <= 0 {
		o.InitialTemp = 100
	}
	if o.Cooling <= 0 || o.Cooling >= 1 {
		o.Cooling = 0.95
	}
	if o.MinTemp <= 0 {
		o.MinTemp = 0.01
	}
	if o.WeightGA <= 0 && o.WeightSA <= 0 && o.WeightLP <= 0 {
		o.WeightGA, o.WeightSA, o.WeightLP = 0.40, 0.35, 0.25
	}
	return o
}

// Problem is the immutable input shared by the algorithms. Coefficients
// holds the per-trainset objective values in snapshot order.
type Problem struct {
	Snapshot       *model.FleetSnapshot
	Coefficients   []float64
	MinService     int
	MaxMaintenance int
	Now            time.Time // reference instant for fitness-expiry bounds
}

// Outcome is one algorithm's labeling. Score is the labeling's value on
// the shared fitness scale so algorithm results stay comparable in logs.
type Outcome struct {
	Algorithm string
	Labels    []model.DecisionLabel
	Score     float64
	Duration  time.Duration
}

// Result is the merged solver output handed to constraint repair.
type Result struct {
	Mode     Mode
	Labels   []model.DecisionLabel
	Outcomes []Outcome
	Seed     int64
}

// allowedLabels returns the labels the randomized algorithms may assign
// to a trainset. Emergency cards pin the choice to repair-or-standby;
// missing clearance or a fitness score below the service minimum rules
// out revenue service.
func allowedLabels(t *model.Trainset) []model.DecisionLabel {
	switch {
	case t.HasEmergencyJob():
		return []model.DecisionLabel{model.LabelEmergencyRepair, model.LabelStandby}
	case !t.ServiceFit():
		return []model.DecisionLabel{model.LabelMaintenance, model.LabelStandby}
	default:
		return []model.DecisionLabel{model.LabelInService, model.LabelStandby, model.LabelMaintenance}
	}
}

// tally counts service and maintenance assignments. Emergency repair
// occupies maintenance capacity.
func tally(labels []model.DecisionLabel) (service, maintenance int) {
	for _, l := range labels {
		switch l {
		case model.LabelInService:
			service++
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
	}
	return service, maintenance
}

// fitness scores a labeling; higher is better. A non-finite coefficient
// poisons the assignment, not the arithmetic.
func fitness(p *Problem, labels []model.DecisionLabel) float64 {
	var sum float64
	service, maintenance := 0, 0
	for i, l := range labels {
		switch l {
		case model.LabelInService:
			c := p.Coefficients[i]
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return math.Inf(-1)
			}
			sum += c
			service++
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
	}
	if service >= p.MinService {
		sum += 100
	}
	if over := maintenance - p.MaxMaintenance; over > 0 {
		sum -= 10 * float64(over)
	}
	return sum
}

// energy is the annealing objective; lower is better.
func energy(p *Problem, labels []model.DecisionLabel) float64 {
	var score float64
	service, maintenance := 0, 0
	for i, l := range labels {
		switch l {
		case model.LabelInService:
			c := p.Coefficients[i]
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return math.Inf(1)
			}
			score += c
			service++
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
	}
	var e float64
	if short := p.MinService - service; short > 0 {
		e += float64(short) * 100
	}
	if over := maintenance - p.MaxMaintenance; over > 0 {
		e += float64(over) * 50
	}
	return e - 10*score
}
