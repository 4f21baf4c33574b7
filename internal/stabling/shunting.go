// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stabling

import (
	"sort"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

// EnergyBaseKWh is the fixed traction cost of one direct move; plan
// summaries price the unoptimized shunting baseline against it.
const EnergyBaseKWh = 15.0

// Fixed shunting cost parameters (minutes / kWh).
const (
	safetyCheckMinutes = 1.0
	minutesPer100m     = 2.0
	couplingMinutes    = 5.0 // couple 3 + uncouple 2 per displacement
	energyPer100mKWh   = 5.0
	positionPitchM     = 50.0
)

// pendingMove is a planned relocation not yet placed into a wave. from
// is updated when a deadlock displacement parks the unit elsewhere.
type pendingMove struct {
	decision int
	id       string
	from     string
	to       string
	priority int
}

// planMoves reconciles current occupancy with the assigned bays. Moves
// execute in waves of at most maxMoves mutually track-disjoint moves; a
// wave with nothing ready means circular blocking, broken by displacing
// the lowest-priority pending unit to a free bay.
func (o *Optimizer) planMoves(decisions []model.Decision, snap *model.FleetSnapshot) Result {
	var res Result

	bays := make(map[string]*model.Bay, len(snap.Bays))
	for i := range snap.Bays {
		bays[snap.Bays[i].ID] = &snap.Bays[i]
	}
	offsets := make(map[string]float64, len(snap.Tracks))
	for _, tr := range snap.Tracks {
		offsets[tr.ID] = tr.OffsetM
	}
	occupancy := make(map[string]string, len(snap.Trainsets))
	for i := range snap.Trainsets {
		if b := snap.Trainsets[i].CurrentBay; b != "" {
			occupancy[b] = snap.Trainsets[i].ID
		}
	}

	var pending []*pendingMove
	targets := make(map[string]bool)
	moving := make(map[string]bool)
	for i := range decisions {
		d := &decisions[i]
		current := snap.Trainsets[i].CurrentBay
		switch {
		case d.AssignedBay == "" || d.AssignedBay == current:
			d.MoveState = model.MovePlaced
		case current == "":
			// arriving unit: parks straight into its bay, no shunt
			occupancy[d.AssignedBay] = d.TrainsetID
			d.MoveState = model.MovePlaced
		default:
			pending = append(pending, &pendingMove{
				decision: i,
				id:       d.TrainsetID,
				from:     current,
				to:       d.AssignedBay,
				priority: d.Priority,
			})
			targets[d.AssignedBay] = true
			moving[d.TrainsetID] = true
			d.MoveState = model.MovePending
		}
	}

	wave := 0
	displaced := make(map[string]bool)
	for len(pending) > 0 {
		var ready []*pendingMove
		for _, m := range pending {
			if occupancy[m.to] != "" {
				continue
			}
			if blocked := exitBlockers(m, snap, bays, occupancy); anyMoving(blocked, moving) {
				continue
			}
			ready = append(ready, m)
		}

		if len(ready) == 0 {
			forced := lowestPriority(pending)
			// one displacement per unit, so two stubborn bays cannot
			// trade the same trainset forever
			free := ""
			if !displaced[forced.id] {
				free = freeBay(snap, occupancy, targets)
			}
			if free != "" {
				displaced[forced.id] = true
				o.logger.Debug().
					Str(log.FieldTrainsetID, forced.id).
					Str(log.FieldBay, free).
					Msg("stabling.deadlock_displacement")
				o.emit(&res, decisions, snap, bays, offsets, occupancy, forced, free, wave)
				forced.from = free
			} else {
				o.emit(&res, decisions, snap, bays, offsets, occupancy, forced, forced.to, wave)
				pending = remove(pending, forced)
				delete(moving, forced.id)
			}
			wave++
			continue
		}

		sort.Slice(ready, func(a, b int) bool {
			if ready[a].priority != ready[b].priority {
				return ready[a].priority > ready[b].priority
			}
			return ready[a].id < ready[b].id
		})
		usedTracks := make(map[string]bool)
		var taken []*pendingMove
		for _, m := range ready {
			if len(taken) == o.maxMoves {
				break
			}
			ft, tt := trackOf(bays, m.from), trackOf(bays, m.to)
			if usedTracks[ft] || usedTracks[tt] {
				continue
			}
			usedTracks[ft], usedTracks[tt] = true, true
			taken = append(taken, m)
		}
		for _, m := range taken {
			o.emit(&res, decisions, snap, bays, offsets, occupancy, m, m.to, wave)
			pending = remove(pending, m)
			delete(moving, m.id)
		}
		wave++
	}

	res.WaveCount = wave
	res.TurnOutMinutes = turnOutMinutes(res.Moves)
	for _, m := range res.Moves {
		res.EnergyKWh += m.EnergyKWh
	}
	return res
}

// emit types and prices one move against current occupancy, appends it
// to the schedule and advances the simulated occupancy.
func (o *Optimizer) emit(res *Result, decisions []model.Decision, snap *model.FleetSnapshot,
	bays map[string]*model.Bay, offsets map[string]float64, occupancy map[string]string,
	m *pendingMove, to string, wave int) {

	blockers := exitBlockers(m, snap, bays, occupancy)
	if occ := occupancy[to]; occ != "" && occ != m.id {
		blockers = append(blockers, occ)
	}

	mtype := model.MoveDirect
	switch {
	case len(blockers) == 1:
		mtype = model.MovePullPush
	case len(blockers) > 1:
		mtype = model.MoveTriangle
	}

	d := distanceM(bays, offsets, m.from, to)
	minutes := safetyCheckMinutes + minutesPer100m*d/100
	energy := EnergyBaseKWh + energyPer100mKWh*d/100
	switch mtype {
	case model.MovePullPush:
		minutes += couplingMinutes
		energy *= 1.5
	case model.MoveTriangle:
		minutes *= 2
		energy *= 2
	}

	delete(occupancy, m.from)
	occupancy[to] = m.id

	res.Moves = append(res.Moves, model.ShuntingMove{
		TrainsetID: m.id,
		FromBay:    m.from,
		ToBay:      to,
		Type:       mtype,
		Minutes:    minutes,
		EnergyKWh:  energy,
		BlockedBy:  blockers,
		Wave:       wave,
	})
	dec := &decisions[m.decision]
	dec.Moves = append(dec.Moves, len(res.Moves)-1)
}

// exitBlockers lists occupants sitting between the mover and the exit
// switch on its current track, nearest the switch first.
func exitBlockers(m *pendingMove, snap *model.FleetSnapshot, bays map[string]*model.Bay, occupancy map[string]string) []string {
	from := bays[m.from]
	if from == nil {
		return nil
	}
	type blocked struct {
		pos int
		id  string
	}
	var found []blocked
	for i := range snap.Bays {
		b := &snap.Bays[i]
		if b.TrackID != from.TrackID || b.Position >= from.Position {
			continue
		}
		if occ := occupancy[b.ID]; occ != "" && occ != m.id {
			found = append(found, blocked{pos: b.Position, id: occ})
		}
	}
	sort.Slice(found, func(a, b int) bool { return found[a].pos < found[b].pos })
	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids
}

// freeBay returns the first unoccupied bay that is nobody's target,
// preferring plain stabling bays.
func freeBay(snap *model.FleetSnapshot, occupancy map[string]string, targets map[string]bool) string {
	candidates := make([]*model.Bay, 0, len(snap.Bays))
	for i := range snap.Bays {
		candidates = append(candidates, &snap.Bays[i])
	}
	sort.Slice(candidates, func(a, b int) bool {
		sa, sb := candidates[a].Type == model.BayStabling, candidates[b].Type == model.BayStabling
		if sa != sb {
			return sa
		}
		if candidates[a].TrackID != candidates[b].TrackID {
			return candidates[a].TrackID < candidates[b].TrackID
		}
		return candidates[a].Position < candidates[b].Position
	})
	for _, b := range candidates {
		if occupancy[b.ID] == "" && !targets[b.ID] {
			return b.ID
		}
	}
	return ""
}

// distanceM estimates shunting distance: lateral track offset plus the
// positional pitch along the track.
func distanceM(bays map[string]*model.Bay, offsets map[string]float64, fromID, toID string) float64 {
	from, to := bays[fromID], bays[toID]
	if from == nil || to == nil {
		return 0
	}
	d := offsets[to.TrackID] - offsets[from.TrackID]
	if d < 0 {
		d = -d
	}
	p := float64(to.Position - from.Position)
	if p < 0 {
		p = -p
	}
	return d + p*positionPitchM
}

// turnOutMinutes sums the slowest move of each wave.
func turnOutMinutes(moves []model.ShuntingMove) float64 {
	waveMax := make(map[int]float64)
	for _, m := range moves {
		if m.Minutes > waveMax[m.Wave] {
			waveMax[m.Wave] = m.Minutes
		}
	}
	var total float64
	for _, v := range waveMax {
		total += v
	}
	return total
}

func lowestPriority(pending []*pendingMove) *pendingMove {
	forced := pending[0]
	for _, m := range pending[1:] {
		if m.priority < forced.priority || (m.priority == forced.priority && m.id < forced.id) {
			forced = m
		}
	}
	return forced
}

func anyMoving(ids []string, moving map[string]bool) bool {
	for _, id := range ids {
		if moving[id] {
			return true
		}
	}
	return false
}

func trackOf(bays map[string]*model.Bay, bayID string) string {
	if b := bays[bayID]; b != nil {
		return b.TrackID
	}
	return ""
}

func remove(pending []*pendingMove, m *pendingMove) []*pendingMove {
	out := pending[:0]
	for _, p := range pending {
		if p != m {
			out = append(out, p)
		}
	}
	return out
}
