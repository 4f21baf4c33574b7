// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/scoring"
)

// fleetOf builds n cleared trainsets; the last `emergencies` of them
// carry an EMERGENCY job card.
func fleetOf(n, emergencies int) []model.Trainset {
	out := make([]model.Trainset, n)
	for i := range out {
		out[i] = model.Trainset{
			ID:           fmt.Sprintf("TS-%02d", i+1),
			Status:       model.StatusAvailable,
			FitnessScore: 6 + float64(i%5),
			MileageKM:    int64(40000 + 1000*i),
			Cleared:      true,
			EnergyKWh:    300 + float64(10*i),
		}
	}
	for i := 0; i < emergencies && i < n; i++ {
		t := &out[n-1-i]
		t.OpenJobs = []model.JobCard{{
			ID:             fmt.Sprintf("EMG-%d", i+1),
			TrainsetID:     t.ID,
			Priority:       model.PriorityEmergency,
			EstimatedHours: 8,
		}}
	}
	return out
}

func testProblem(trainsets []model.Trainset, minService, maxMaintenance int) *Problem {
	snap := &model.FleetSnapshot{
		TakenAt:   time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		Depot:     "MUTTOM",
		Trainsets: trainsets,
	}
	return &Problem{
		Snapshot:       snap,
		Coefficients:   scoring.Vector(snap),
		MinService:     minService,
		MaxMaintenance: maxMaintenance,
		Now:            snap.TakenAt,
	}
}

func TestAllowedLabelSets(t *testing.T) {
	emergency := model.Trainset{Cleared: true, OpenJobs: []model.JobCard{{Priority: model.PriorityEmergency}}}
	require.Equal(t,
		[]model.DecisionLabel{model.LabelEmergencyRepair, model.LabelStandby},
		allowedLabels(&emergency))

	uncleared := model.Trainset{}
	require.Equal(t,
		[]model.DecisionLabel{model.LabelMaintenance, model.LabelStandby},
		allowedLabels(&uncleared))

	unfit := model.Trainset{Cleared: true, FitnessScore: 1.2}
	require.Equal(t,
		[]model.DecisionLabel{model.LabelMaintenance, model.LabelStandby},
		allowedLabels(&unfit))

	fit := model.Trainset{Cleared: true, FitnessScore: 8}
	require.Equal(t,
		[]model.DecisionLabel{model.LabelInService, model.LabelStandby, model.LabelMaintenance},
		allowedLabels(&fit))
}

func TestTallyCountsRepairAsMaintenance(t *testing.T) {
	service, maintenance := tally([]model.DecisionLabel{
		model.LabelInService,
		model.LabelStandby,
		model.LabelMaintenance,
		model.LabelEmergencyRepair,
	})
	require.Equal(t, 1, service)
	require.Equal(t, 2, maintenance)
}

func TestFitnessBonusAndPenalty(t *testing.T) {
	p := testProblem(fleetOf(4, 0), 2, 1)
	labels := []model.DecisionLabel{
		model.LabelInService,
		model.LabelInService,
		model.LabelMaintenance,
		model.LabelMaintenance,
	}

	// floor met earns the 100 bonus, one slot over cap costs 10
	want := p.Coefficients[0] + p.Coefficients[1] + 100 - 10
	require.InDelta(t, want, fitness(p, labels), 1e-9)
}

func TestFitnessRejectsNonFiniteCoefficient(t *testing.T) {
	p := testProblem(fleetOf(2, 0), 1, 5)
	p.Coefficients[0] = math.NaN()
	labels := []model.DecisionLabel{model.LabelInService, model.LabelStandby}

	require.True(t, math.IsInf(fitness(p, labels), -1))
	require.True(t, math.IsInf(energy(p, labels), 1))
}

func TestEnergyPenalties(t *testing.T) {
	p := testProblem(fleetOf(4, 0), 3, 1)

	idle := []model.DecisionLabel{
		model.LabelStandby, model.LabelStandby, model.LabelStandby, model.LabelStandby,
	}
	require.InDelta(t, 300, energy(p, idle), 1e-9) // shortfall 3 x 100

	mixed := []model.DecisionLabel{
		model.LabelInService, model.LabelMaintenance, model.LabelMaintenance, model.LabelStandby,
	}
	// shortfall 2, one over cap, minus the served coefficient
	require.InDelta(t, 200+50-10*p.Coefficients[0], energy(p, mixed), 1e-9)
}
