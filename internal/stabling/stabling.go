// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stabling turns repaired decisions into overnight bay
// assignments and a shunting schedule. Placement is purely positional:
// early departures and special-handling needs pull a trainset toward
// the exit or into the matching special bays; the move planner then
// reconciles current occupancy with the target geometry.
package stabling

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

// Result is the shunting schedule derived from a bay assignment.
type Result struct {
	Moves          []model.ShuntingMove
	WaveCount      int
	TurnOutMinutes float64
	EnergyKWh      float64
}

// Optimizer plans bay placement and shunting for one depot.
type Optimizer struct {
	maxMoves int
	logger   zerolog.Logger
}

// New returns an optimizer allowing up to maxSimultaneousMoves per wave.
func New(maxSimultaneousMoves int) *Optimizer {
	if maxSimultaneousMoves <= 0 {
		maxSimultaneousMoves = 2
	}
	return &Optimizer{maxMoves: maxSimultaneousMoves, logger: log.WithComponent("stabling")}
}

// Arrange assigns every trainset a target bay, stamps departure
// priorities and move states on the decisions, and returns the ordered
// shunting schedule. Decisions must be in snapshot order.
func (o *Optimizer) Arrange(decisions []model.Decision, snap *model.FleetSnapshot) (Result, error) {
	if len(decisions) != len(snap.Trainsets) {
		return Result{}, fmt.Errorf("stabling: %d decisions for %d trainsets", len(decisions), len(snap.Trainsets))
	}
	o.assignBays(decisions, snap)
	res := o.planMoves(decisions, snap)
	o.logger.Info().
		Str(log.FieldDepot, snap.Depot).
		Int("moves", len(res.Moves)).
		Int("waves", res.WaveCount).
		Float64("turnout_minutes", res.TurnOutMinutes).
		Msg("stabling.planned")
	return res, nil
}

// departurePriority ranks a trainset for exit proximity: the earlier the
// morning departure the higher, minus handling penalties.
func departurePriority(t *model.Trainset) int {
	p := 5
	if t.NextDeparture != nil {
		switch h := t.NextDeparture.Hour(); {
		case h < 6:
			p = 10
		case h < 7:
			p = 9
		case h < 8:
			p = 8
		case h < 9:
			p = 7
		case h < 10:
			p = 6
		}
	}
	if t.NeedsCleaning {
		p -= 2
	}
	if t.NeedsInspection {
		p -= 3
	}
	return p
}

// assignBays fills maintenance, inspection and cleaning bays from the
// matching pools first, then stables the remaining fleet nearest-exit by
// priority. Trainsets that fit nowhere keep their current bay.
func (o *Optimizer) assignBays(decisions []model.Decision, snap *model.FleetSnapshot) {
	for i := range decisions {
		decisions[i].Priority = departurePriority(&snap.Trainsets[i])
	}

	sorted := make([]*model.Bay, 0, len(snap.Bays))
	for i := range snap.Bays {
		sorted = append(sorted, &snap.Bays[i])
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].TrackID != sorted[b].TrackID {
			return sorted[a].TrackID < sorted[b].TrackID
		}
		return sorted[a].Position < sorted[b].Position
	})
	baysOf := func(bt model.BayType) []string {
		var ids []string
		for _, b := range sorted {
			if b.Type == bt {
				ids = append(ids, b.ID)
			}
		}
		return ids
	}
	allBays := make([]string, len(sorted))
	for i, b := range sorted {
		allBays[i] = b.ID
	}

	var workshop, inspection, cleaning, active []int
	for i := range decisions {
		ts := &snap.Trainsets[i]
		switch {
		case decisions[i].Label == model.LabelMaintenance || decisions[i].Label == model.LabelEmergencyRepair:
			workshop = append(workshop, i)
		case ts.NeedsInspection:
			inspection = append(inspection, i)
		case ts.NeedsCleaning:
			cleaning = append(cleaning, i)
		default:
			active = append(active, i)
		}
	}

	byPriority := func(units []int) {
		sort.Slice(units, func(a, b int) bool {
			da, db := &decisions[units[a]], &decisions[units[b]]
			if da.Priority != db.Priority {
				return da.Priority > db.Priority
			}
			return da.TrainsetID < db.TrainsetID
		})
	}

	taken := make(map[string]bool)
	assign := func(units []int, bayIDs []string) (overflow []int) {
		byPriority(units)
		j := 0
		for _, u := range units {
			for j < len(bayIDs) && taken[bayIDs[j]] {
				j++
			}
			if j == len(bayIDs) {
				overflow = append(overflow, u)
				continue
			}
			decisions[u].AssignedBay = bayIDs[j]
			taken[bayIDs[j]] = true
			j++
		}
		return overflow
	}

	var spill []int
	spill = append(spill, assign(workshop, baysOf(model.BayMaintenance))...)
	spill = append(spill, assign(inspection, baysOf(model.BayInspection))...)
	spill = append(spill, assign(cleaning, baysOf(model.BayCleaning))...)
	rest := assign(append(active, spill...), baysOf(model.BayStabling))
	rest = assign(rest, allBays)
	for _, u := range rest {
		decisions[u].AssignedBay = snap.Trainsets[u].CurrentBay
		o.logger.Warn().
			Str(log.FieldTrainsetID, decisions[u].TrainsetID).
			Msg("stabling.no_free_bay")
	}
}
