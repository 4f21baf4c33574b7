// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package repair pushes a solver labeling back inside the operational
// constraints: service floor, maintenance capacity, service eligibility,
// expiring fitness certificates and emergency-card consistency. Rules run
// to a fixed point; whatever cannot be fixed is reported so the plan can
// carry it.
package repair

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
)

// ErrUnresolvable reports constraints the repair loop could not satisfy.
// Callers still emit the plan, marked infeasible.
var ErrUnresolvable = errors.New("unresolvable constraints")

const (
	maxIterations = 10

	// fitness certificates closer than this to expiry pull a trainset
	// out of revenue service
	expiryHorizon = 14 * 24 * time.Hour
)

// Conflict tags attached to decisions the loop could not fully fix.
const (
	TagExpiringFitness   = "EXPIRING_FITNESS"
	TagDeferredEmergency = "DEFERRED_EMERGENCY"
)

// Limits are the hard bounds a plan must respect.
type Limits struct {
	MinService     int
	MaxMaintenance int
}

// Result reports what the repair loop did.
type Result struct {
	Iterations int
	Actions    int
	Violations []string
}

// Run mutates decisions in place until every rule holds or the iteration
// cap is hit. Decisions must be in snapshot order. The returned error is
// ErrUnresolvable when violations remain; the decisions stay usable.
func Run(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits, now time.Time) (Result, error) {
	var res Result
	if len(decisions) != len(snap.Trainsets) {
		return res, fmt.Errorf("repair: %d decisions for %d trainsets", len(decisions), len(snap.Trainsets))
	}

	fixed := false
	for res.Iterations < maxIterations {
		res.Iterations++
		acted := relabelOrphanRepairs(decisions, snap)
		acted += admitEmergencyRepairs(decisions, snap, lim)
		acted += admitIneligibleMaintenance(decisions, snap, lim)
		acted += forceExpiringFitness(decisions, snap, lim, now)
		acted += promoteToFloor(decisions, snap, lim)
		acted += demoteToCap(decisions, snap, lim)
		res.Actions += acted
		if acted == 0 {
			fixed = true
			break
		}
	}
	metrics.ObserveRepairIterations(res.Iterations)

	service, maintenance := tally(decisions)
	if service < lim.MinService {
		res.Violations = append(res.Violations,
			fmt.Sprintf("service %d below floor %d", service, lim.MinService))
	}
	if maintenance > lim.MaxMaintenance {
		res.Violations = append(res.Violations,
			fmt.Sprintf("maintenance %d over cap %d", maintenance, lim.MaxMaintenance))
	}
	if !fixed {
		res.Violations = append(res.Violations,
			fmt.Sprintf("no fixed point after %d iterations", maxIterations))
	}
	if len(res.Violations) > 0 {
		return res, fmt.Errorf("%w: %s", ErrUnresolvable, strings.Join(res.Violations, "; "))
	}
	return res, nil
}

// relabelOrphanRepairs downgrades EMERGENCY_REPAIR labels whose trainset
// no longer holds an open emergency job card.
func relabelOrphanRepairs(decisions []model.Decision, snap *model.FleetSnapshot) int {
	acted := 0
	for i := range decisions {
		d := &decisions[i]
		if d.Label != model.LabelEmergencyRepair || snap.Trainsets[i].HasEmergencyJob() {
			continue
		}
		d.Label = model.LabelMaintenance
		d.Reasons = append(d.Reasons, "emergency repair without an open emergency job: relabeled maintenance")
		acted++
	}
	return acted
}

// admitEmergencyRepairs hoists standby units holding an open emergency
// card into repair. Emergency work outranks plain maintenance for
// capacity: at the cap the cheapest maintenance slot is preempted
// first, and only a backlog of pure emergencies defers the unit,
// tagged so it stays visible.
func admitEmergencyRepairs(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits) int {
	_, maintenance := tally(decisions)
	acted := 0
	for i := range decisions {
		d := &decisions[i]
		if d.Label != model.LabelStandby || !snap.Trainsets[i].HasEmergencyJob() {
			continue
		}
		if maintenance >= lim.MaxMaintenance {
			v := preemptable(decisions, snap)
			if v < 0 {
				if !lo.Contains(d.ConflictTags, TagDeferredEmergency) {
					d.ConflictTags = append(d.ConflictTags, TagDeferredEmergency)
					d.Reasons = append(d.Reasons,
						fmt.Sprintf("open emergency job card deferred: backlog at cap %d", lim.MaxMaintenance))
					acted++
				}
				continue
			}
			decisions[v].Label = model.LabelStandby
			decisions[v].Reasons = append(decisions[v].Reasons,
				"maintenance slot preempted by emergency repair")
			maintenance--
			acted++
		}
		d.Label = model.LabelEmergencyRepair
		d.Reasons = append(d.Reasons, "open emergency job card: admitted to repair")
		maintenance++
		acted++
	}
	return acted
}

// admitIneligibleMaintenance stages standby units that cannot carry
// revenue service, missing clearance or a fitness score under the
// service minimum, into maintenance while capacity lasts. Such a unit
// cannot back the service floor, so the spare slot is worth less than
// the inspection.
func admitIneligibleMaintenance(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits) int {
	_, maintenance := tally(decisions)
	acted := 0
	for i := range decisions {
		d := &decisions[i]
		ts := &snap.Trainsets[i]
		if d.Label != model.LabelStandby || ts.ServiceFit() || ts.HasEmergencyJob() {
			continue
		}
		if maintenance >= lim.MaxMaintenance {
			break
		}
		d.Label = model.LabelMaintenance
		if !ts.Cleared {
			d.Reasons = append(d.Reasons, "no valid clearance: staged for maintenance")
		} else {
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("fitness score %.1f below service minimum: staged for maintenance", ts.FitnessScore))
		}
		maintenance++
		acted++
	}
	return acted
}

// preemptable picks the plain-maintenance decision cheapest to push
// out: lowest open-job weight, ties by id. Returns -1 when none exists.
func preemptable(decisions []model.Decision, snap *model.FleetSnapshot) int {
	best := -1
	for i := range decisions {
		if decisions[i].Label != model.LabelMaintenance {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		wi := snap.Trainsets[i].JobPriorityWeight()
		wb := snap.Trainsets[best].JobPriorityWeight()
		if wi < wb || (wi == wb && decisions[i].TrainsetID < decisions[best].TrainsetID) {
			best = i
		}
	}
	return best
}

// forceExpiringFitness pulls units with soon-expiring certificates out of
// revenue service. A unit only stays in service, carrying a conflict tag,
// when removing it would break the floor and no standby can backfill.
func forceExpiringFitness(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits, now time.Time) int {
	acted := 0
	service, _ := tally(decisions)
	backfill := eligibleStandbys(decisions, snap)
	for i := range decisions {
		d := &decisions[i]
		if d.Label != model.LabelInService {
			continue
		}
		exp := snap.Trainsets[i].EarliestFitnessExpiry()
		if exp.IsZero() || exp.Sub(now) >= expiryHorizon {
			continue
		}
		switch {
		case service-1 >= lim.MinService:
			service--
		case backfill > 0:
			// the promote pass restores the floor this iteration
			service--
			backfill--
		default:
			if !lo.Contains(d.ConflictTags, TagExpiringFitness) {
				d.ConflictTags = append(d.ConflictTags, TagExpiringFitness)
				d.Reasons = append(d.Reasons,
					fmt.Sprintf("fitness expires %s but the service floor blocks maintenance", exp.Format("2006-01-02")))
				acted++
			}
			continue
		}
		d.Label = model.LabelMaintenance
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("fitness expires %s: moved to maintenance", exp.Format("2006-01-02")))
		acted++
	}
	return acted
}

// eligibleStandbys counts standby units that could be promoted into
// service right now.
func eligibleStandbys(decisions []model.Decision, snap *model.FleetSnapshot) int {
	n := 0
	for i := range decisions {
		ts := &snap.Trainsets[i]
		if decisions[i].Label == model.LabelStandby && ts.ServiceFit() && !ts.HasEmergencyJob() {
			n++
		}
	}
	return n
}

// promoteToFloor moves the highest-scoring eligible standby units into
// service until the floor is met or candidates run out. When standbys
// alone cannot close the gap, plain maintenance on cleared units is
// deferred: the floor outranks non-emergency work.
func promoteToFloor(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits) int {
	service, _ := tally(decisions)
	if service >= lim.MinService {
		return 0
	}

	var candidates []int
	for i := range decisions {
		ts := &snap.Trainsets[i]
		if decisions[i].Label == model.LabelStandby && ts.ServiceFit() && !ts.HasEmergencyJob() {
			candidates = append(candidates, i)
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		da, db := &decisions[candidates[a]], &decisions[candidates[b]]
		if da.Score != db.Score {
			return da.Score > db.Score
		}
		return da.TrainsetID < db.TrainsetID
	})

	acted := 0
	for _, i := range candidates {
		if service >= lim.MinService {
			break
		}
		d := &decisions[i]
		d.Label = model.LabelInService
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("promoted from standby: service %d below floor %d", service, lim.MinService))
		service++
		acted++
	}
	if service >= lim.MinService {
		return acted
	}

	var fallback []int
	for i := range decisions {
		ts := &snap.Trainsets[i]
		if decisions[i].Label == model.LabelMaintenance && ts.ServiceFit() && !ts.HasEmergencyJob() {
			fallback = append(fallback, i)
		}
	}
	sort.Slice(fallback, func(a, b int) bool {
		wa := snap.Trainsets[fallback[a]].JobPriorityWeight()
		wb := snap.Trainsets[fallback[b]].JobPriorityWeight()
		if wa != wb {
			return wa < wb
		}
		return decisions[fallback[a]].TrainsetID < decisions[fallback[b]].TrainsetID
	})
	for _, i := range fallback {
		if service >= lim.MinService {
			break
		}
		d := &decisions[i]
		d.Label = model.LabelInService
		d.Reasons = append(d.Reasons,
			fmt.Sprintf("maintenance deferred to meet service floor %d", lim.MinService))
		service++
		acted++
	}
	return acted
}

// demoteToCap sheds maintenance backlog down to capacity. Plain
// maintenance goes first; emergency repairs are deferred only when the
// excess consists of nothing else, and get tagged when they are.
func demoteToCap(decisions []model.Decision, snap *model.FleetSnapshot, lim Limits) int {
	_, maintenance := tally(decisions)
	if maintenance <= lim.MaxMaintenance {
		return 0
	}

	var candidates []int
	for i := range decisions {
		if l := decisions[i].Label; l == model.LabelMaintenance || l == model.LabelEmergencyRepair {
			candidates = append(candidates, i)
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		la := decisions[candidates[a]].Label
		lb := decisions[candidates[b]].Label
		if la != lb {
			return la == model.LabelMaintenance
		}
		wa := snap.Trainsets[candidates[a]].JobPriorityWeight()
		wb := snap.Trainsets[candidates[b]].JobPriorityWeight()
		if wa != wb {
			return wa < wb
		}
		return decisions[candidates[a]].TrainsetID < decisions[candidates[b]].TrainsetID
	})

	acted := 0
	for _, i := range candidates {
		if maintenance <= lim.MaxMaintenance {
			break
		}
		d := &decisions[i]
		if d.Label == model.LabelEmergencyRepair {
			if !lo.Contains(d.ConflictTags, TagDeferredEmergency) {
				d.ConflictTags = append(d.ConflictTags, TagDeferredEmergency)
			}
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("emergency repair deferred to standby: backlog %d over cap %d", maintenance, lim.MaxMaintenance))
		} else {
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("maintenance deferred to standby: backlog %d over cap %d", maintenance, lim.MaxMaintenance))
		}
		d.Label = model.LabelStandby
		maintenance--
		acted++
	}
	return acted
}

// tally counts service and maintenance assignments; emergency repair
// occupies maintenance capacity.
func tally(decisions []model.Decision) (service, maintenance int) {
	for i := range decisions {
		switch decisions[i].Label {
		case model.LabelInService:
			service++
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
	}
	return service, maintenance
}
