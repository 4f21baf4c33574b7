// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// DecisionLabel is the induction outcome assigned to a trainset.
type DecisionLabel string

const (
	LabelInService       DecisionLabel = "IN_SERVICE"
	LabelStandby         DecisionLabel = "STANDBY"
	LabelMaintenance     DecisionLabel = "MAINTENANCE"
	LabelEmergencyRepair DecisionLabel = "EMERGENCY_REPAIR"
)

// ValidLabel reports whether l is one of the declared decision labels.
func ValidLabel(l DecisionLabel) bool {
	switch l {
	case LabelInService, LabelStandby, LabelMaintenance, LabelEmergencyRepair:
		return true
	}
	return false
}

// MoveState tracks a decision through bay placement and shunting.
type MoveState string

const (
	MovePlaced     MoveState = "PLACED"
	MovePending    MoveState = "MOVE_PENDING"
	MoveInProgress MoveState = "MOVE_IN_PROGRESS"
	MoveDone       MoveState = "MOVE_DONE"
	MoveBlocked    MoveState = "BLOCKED"
)

// MoveType classifies a shunting move by how many displacements it needs.
type MoveType string

const (
	MoveDirect   MoveType = "DIRECT"
	MovePullPush MoveType = "PULL_PUSH"
	MoveTriangle MoveType = "TRIANGLE"
)

// Decision is the solver verdict for one trainset. Immutable once the plan
// is emitted; manual overrides produce a new plan revision.
type Decision struct {
	TrainsetID   string        `json:"trainsetId"`
	Label        DecisionLabel `json:"label"`
	Score        float64       `json:"score"`
	Reasons      []string      `json:"reasons,omitempty"`
	ConflictTags []string      `json:"conflictTags,omitempty"`
	AssignedBay  string        `json:"assignedBay,omitempty"`
	Moves        []int         `json:"moves,omitempty"` // indexes into plan move sequence
	Priority     int           `json:"priority"`
	MoveState    MoveState     `json:"moveState,omitempty"`
}

// ShuntingMove relocates one trainset between bays.
type ShuntingMove struct {
	TrainsetID string   `json:"trainsetId"`
	FromBay    string   `json:"fromBay"`
	ToBay      string   `json:"toBay"`
	Type       MoveType `json:"type"`
	Minutes    float64  `json:"minutes"`
	EnergyKWh  float64  `json:"energyKwh"`
	BlockedBy  []string `json:"blockedBy,omitempty"` // trainset ids in the way
	Wave       int      `json:"wave"`                // parallel execution group, 0-based
}

// PlanMetrics aggregates the plan-level summary values operators see.
type PlanMetrics struct {
	TotalScore            float64 `json:"totalScore"`
	ServiceAvailability   float64 `json:"serviceAvailability"`
	MaintenanceEfficiency float64 `json:"maintenanceEfficiency"`
	EnergySavingsKWh      float64 `json:"energySavingsKwh"`
	BrandingCompliance    float64 `json:"brandingCompliance"`
	PredictedPunctuality  float64 `json:"predictedPunctuality"`
	RiskScore             float64 `json:"riskScore"`
	CostBenefit           float64 `json:"costBenefit"`
	ShuntingMinutes       float64 `json:"shuntingMinutes"`
	ShuntingEnergyKWh     float64 `json:"shuntingEnergyKwh"`
}

// InductionPlan is the nightly decision set plus the shunting schedule.
type InductionPlan struct {
	ID          string         `json:"id"` // depot|ISO-timestamp|counter
	Depot       string         `json:"depot"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Decisions   []Decision     `json:"decisions"`
	Moves       []ShuntingMove `json:"moves,omitempty"`
	WaveCount   int            `json:"waveCount"`
	Metrics     PlanMetrics    `json:"metrics"`
	Confidence  float64        `json:"confidence"`
	Infeasible  bool           `json:"infeasible,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	SolverMode  string         `json:"solverMode,omitempty"`
}

// CountLabel returns how many decisions carry the given label.
func (p *InductionPlan) CountLabel(label DecisionLabel) int {
	n := 0
	for i := range p.Decisions {
		if p.Decisions[i].Label == label {
			n++
		}
	}
	return n
}

// Decision returns the decision for a trainset id, or nil when absent.
func (p *InductionPlan) Decision(trainsetID string) *Decision {
	for i := range p.Decisions {
		if p.Decisions[i].TrainsetID == trainsetID {
			return &p.Decisions[i]
		}
	}
	return nil
}

// FleetSnapshot is an immutable value copy of the store handed to solvers.
type FleetSnapshot struct {
	TakenAt    time.Time                  `json:"takenAt"`
	Depot      string                     `json:"depot"`
	Trainsets  []Trainset                 `json:"trainsets"`
	Bays       []Bay                      `json:"bays"`
	Tracks     []Track                    `json:"tracks"`
	Sensors    map[string]SensorAggregate `json:"sensors,omitempty"`
	Clearances []Clearance                `json:"clearances,omitempty"`
}

// MeanMileage returns the fleet mean mileage, 0 for an empty fleet.
func (s *FleetSnapshot) MeanMileage() float64 {
	if len(s.Trainsets) == 0 {
		return 0
	}
	var sum float64
	for i := range s.Trainsets {
		sum += float64(s.Trainsets[i].MileageKM)
	}
	return sum / float64(len(s.Trainsets))
}

// Trainset returns the snapshot entry for an id, or nil when absent.
func (s *FleetSnapshot) Trainset(id string) *Trainset {
	for i := range s.Trainsets {
		if s.Trainsets[i].ID == id {
			return &s.Trainsets[i]
		}
	}
	return nil
}

// Clone returns a deep copy; patch-and-replay callers can mutate it
// without touching the snapshot they were handed.
func (s *FleetSnapshot) Clone() FleetSnapshot {
	out := *s
	if s.Trainsets != nil {
		out.Trainsets = make([]Trainset, len(s.Trainsets))
		for i := range s.Trainsets {
			out.Trainsets[i] = s.Trainsets[i].Clone()
		}
	}
	out.Bays = append([]Bay(nil), s.Bays...)
	out.Tracks = append([]Track(nil), s.Tracks...)
	if s.Sensors != nil {
		out.Sensors = make(map[string]SensorAggregate, len(s.Sensors))
		for k, v := range s.Sensors {
			out.Sensors[k] = v
		}
	}
	out.Clearances = append([]Clearance(nil), s.Clearances...)
	return out
}
