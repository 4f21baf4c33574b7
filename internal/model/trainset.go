// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model defines the fleet domain entities shared by the store,
// the ingestion fabric, the solvers and the stabling optimizer.
package model

import (
	"time"
)

// TrainsetStatus is the operational lifecycle of a trainset.
type TrainsetStatus string

const (
	StatusAvailable      TrainsetStatus = "AVAILABLE"
	StatusInService      TrainsetStatus = "IN_SERVICE"
	StatusMaintenance    TrainsetStatus = "MAINTENANCE"
	StatusCleaning       TrainsetStatus = "CLEANING"
	StatusOutOfOrder     TrainsetStatus = "OUT_OF_ORDER"
	StatusDecommissioned TrainsetStatus = "DECOMMISSIONED"
)

// ValidStatus reports whether s is one of the declared lifecycle states.
func ValidStatus(s TrainsetStatus) bool {
	switch s {
	case StatusAvailable, StatusInService, StatusMaintenance,
		StatusCleaning, StatusOutOfOrder, StatusDecommissioned:
		return true
	}
	return false
}

// Department identifies a fitness-certificate issuing department.
type Department string

const (
	DeptRollingStock Department = "ROLLING_STOCK"
	DeptSignalling   Department = "SIGNALLING"
	DeptTelecom      Department = "TELECOM"
)

// Departments lists all certificate-issuing departments. A trainset is
// cleared for service only when every one of them signs off.
var Departments = []Department{DeptRollingStock, DeptSignalling, DeptTelecom}

// JobPriority orders job cards from most to least urgent.
type JobPriority string

const (
	PriorityEmergency JobPriority = "EMERGENCY"
	PriorityHigh      JobPriority = "HIGH"
	PriorityMedium    JobPriority = "MEDIUM"
	PriorityLow       JobPriority = "LOW"
)

// Weight maps a priority onto the scoring weight used by the objective
// coefficient (EMERGENCY 4 down to LOW 1). Unknown priorities weigh 1.
func (p JobPriority) Weight() float64 {
	switch p {
	case PriorityEmergency:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 1
}

// JobCard is an open maintenance work order against a trainset.
type JobCard struct {
	ID             string      `json:"id"`
	TrainsetID     string      `json:"trainsetId"`
	Priority       JobPriority `json:"priority"`
	EstimatedHours float64     `json:"estimatedHours"`
	RequiredParts  []string    `json:"requiredParts,omitempty"`
	Deadline       *time.Time  `json:"deadline,omitempty"`
	WorkType       string      `json:"workType,omitempty"`
}

// BrandingContract is a revenue agreement tied to a specific trainset.
// Overshooting the exposure target is allowed.
type BrandingContract struct {
	AdvertiserID  string    `json:"advertiserId"`
	TargetHours   float64   `json:"targetHours"`
	ExposureHours float64   `json:"exposureHours"`
	Revenue       float64   `json:"revenue"`
	Penalty       float64   `json:"penalty"`
	Deadline      time.Time `json:"deadline"`
}

// Compliance returns accumulated/target clamped to [0,1].
func (b BrandingContract) Compliance() float64 {
	if b.TargetHours <= 0 {
		return 1
	}
	c := b.ExposureHours / b.TargetHours
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}

// ClearanceStatus is the department sign-off state.
type ClearanceStatus string

const (
	ClearanceCleared ClearanceStatus = "CLEARED"
	ClearancePending ClearanceStatus = "PENDING"
	ClearanceFailed  ClearanceStatus = "FAILED"
)

// Clearance is a department sign-off with a validity window.
type Clearance struct {
	Department Department      `json:"department"`
	TrainsetID string          `json:"trainsetId"`
	Status     ClearanceStatus `json:"status"`
	ValidFrom  time.Time       `json:"validFrom"`
	ValidTo    time.Time       `json:"validTo"`
}

// Covers reports whether the clearance window contains the instant t.
func (c Clearance) Covers(t time.Time) bool {
	return c.Status == ClearanceCleared && !t.Before(c.ValidFrom) && !t.After(c.ValidTo)
}

// Trainset is the per-unit aggregate owned by the fleet store. Cross-entity
// references are by id; resolution happens during snapshot build.
type Trainset struct {
	ID                string                   `json:"id"`
	Status            TrainsetStatus           `json:"status"`
	FitnessScore      float64                  `json:"fitnessScore"` // [0,10]
	FitnessExpiry     map[Department]time.Time `json:"fitnessExpiry,omitempty"`
	MileageKM         int64                    `json:"mileageKm"`
	OperatingHours    float64                  `json:"operatingHours"`
	OpenJobs          []JobCard                `json:"openJobs,omitempty"`
	Branding          *BrandingContract        `json:"branding,omitempty"`
	LastMaintenance   *time.Time               `json:"lastMaintenance,omitempty"`
	NextMaintenance   *time.Time               `json:"nextMaintenance,omitempty"`
	CurrentBay        string                   `json:"currentBay,omitempty"`
	Cleared           bool                     `json:"cleared"`
	EnergyKWh         float64                  `json:"energyKwh"` // last-day traction energy
	NextDeparture     *time.Time               `json:"nextDeparture,omitempty"`
	NeedsCleaning     bool                     `json:"needsCleaning,omitempty"`
	NeedsInspection   bool                     `json:"needsInspection,omitempty"`
	MaintenanceScore  float64                  `json:"maintenanceScore"` // derived by ingestion, [0,100]
	DefectCount       int                      `json:"defectCount,omitempty"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// MinServiceFitness is the lowest composite fitness score at which a unit may
// still carry revenue service. Units below it are held back for maintenance
// regardless of clearance state.
const MinServiceFitness = 2.0

// ServiceFit reports whether the unit is admissible for revenue service: a
// valid clearance and a fitness score of at least MinServiceFitness.
func (t *Trainset) ServiceFit() bool {
	return t.Cleared && t.FitnessScore >= MinServiceFitness
}

// HasEmergencyJob reports whether any open job card carries EMERGENCY priority.
func (t *Trainset) HasEmergencyJob() bool {
	for _, j := range t.OpenJobs {
		if j.Priority == PriorityEmergency {
			return true
		}
	}
	return false
}

// JobPriorityWeight sums the scoring weights of all open job cards.
func (t *Trainset) JobPriorityWeight() float64 {
	var w float64
	for _, j := range t.OpenJobs {
		w += j.Priority.Weight()
	}
	return w
}

// HighestJobPriority returns the most urgent open priority weight, 0 when idle.
func (t *Trainset) HighestJobPriority() float64 {
	var max float64
	for _, j := range t.OpenJobs {
		if w := j.Priority.Weight(); w > max {
			max = w
		}
	}
	return max
}

// EarliestFitnessExpiry returns the soonest certificate expiry across
// departments, or zero time when no certificate is recorded.
func (t *Trainset) EarliestFitnessExpiry() time.Time {
	var earliest time.Time
	for _, exp := range t.FitnessExpiry {
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return earliest
}

// Clone returns a deep copy safe to hand to solvers.
func (t *Trainset) Clone() Trainset {
	out := *t
	if t.FitnessExpiry != nil {
		out.FitnessExpiry = make(map[Department]time.Time, len(t.FitnessExpiry))
		for k, v := range t.FitnessExpiry {
			out.FitnessExpiry[k] = v
		}
	}
	if t.OpenJobs != nil {
		out.OpenJobs = make([]JobCard, len(t.OpenJobs))
		copy(out.OpenJobs, t.OpenJobs)
		for i := range out.OpenJobs {
			if parts := t.OpenJobs[i].RequiredParts; parts != nil {
				out.OpenJobs[i].RequiredParts = append([]string(nil), parts...)
			}
			if d := t.OpenJobs[i].Deadline; d != nil {
				dd := *d
				out.OpenJobs[i].Deadline = &dd
			}
		}
	}
	if t.Branding != nil {
		b := *t.Branding
		out.Branding = &b
	}
	if t.LastMaintenance != nil {
		v := *t.LastMaintenance
		out.LastMaintenance = &v
	}
	if t.NextMaintenance != nil {
		v := *t.NextMaintenance
		out.NextMaintenance = &v
	}
	if t.NextDeparture != nil {
		v := *t.NextDeparture
		out.NextDeparture = &v
	}
	return out
}
