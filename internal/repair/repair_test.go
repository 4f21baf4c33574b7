// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package repair

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/inductd/internal/model"
)

var testNow = time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

func snapOf(trainsets ...model.Trainset) *model.FleetSnapshot {
	return &model.FleetSnapshot{Depot: "MUTTOM", TakenAt: testNow, Trainsets: trainsets}
}

func decisionsFor(snap *model.FleetSnapshot, labels ...model.DecisionLabel) []model.Decision {
	out := make([]model.Decision, len(labels))
	for i, l := range labels {
		out[i] = model.Decision{TrainsetID: snap.Trainsets[i].ID, Label: l}
	}
	return out
}

func TestRunFixedPointOnValidPlan(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelStandby)

	res, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)
	require.Equal(t, 1, res.Iterations)
	require.Zero(t, res.Actions)
}

func TestRunPromotesHighestScoringStandby(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-03", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-04", Cleared: true, FitnessScore: 8},
	)
	decisions := decisionsFor(snap,
		model.LabelInService, model.LabelStandby, model.LabelStandby, model.LabelStandby)
	decisions[1].Score = 0.4
	decisions[2].Score = 1.9
	decisions[3].Score = 1.2

	res, err := Run(decisions, snap, Limits{MinService: 3, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelStandby, decisions[1].Label)
	require.Equal(t, model.LabelInService, decisions[2].Label)
	require.Equal(t, model.LabelInService, decisions[3].Label)
	require.Contains(t, decisions[2].Reasons[0], "service 1 below floor 3")
	require.Equal(t, 2, res.Actions)
}

func TestRunPromoteSkipsIneligibleStandbys(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01"}, // not cleared
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelStandby, model.LabelStandby)

	res, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 2}, testNow)
	require.ErrorIs(t, err, ErrUnresolvable)
	require.Contains(t, res.Violations, "service 0 below floor 1")
	require.Equal(t, model.LabelMaintenance, decisions[0].Label,
		"uncleared standby staged for inspection, never promoted")
	require.Equal(t, model.LabelEmergencyRepair, decisions[1].Label,
		"emergency card admits the unit to repair, not to service")
}

func TestRunAdmitsEmergencyStandbyWithinCap(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-02",
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelEmergencyRepair, decisions[1].Label)
	require.Contains(t, decisions[1].Reasons[0], "admitted to repair")
	require.Empty(t, decisions[1].ConflictTags)
}

func TestRunTagsEmergencyStandbyWhenCapFull(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01",
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityEmergency}}},
		model.Trainset{ID: "TS-02",
			OpenJobs: []model.JobCard{{ID: "J2", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelEmergencyRepair, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelEmergencyRepair, decisions[0].Label)
	require.Equal(t, model.LabelStandby, decisions[1].Label)
	require.Contains(t, decisions[1].ConflictTags, TagDeferredEmergency)
	require.Contains(t, decisions[1].Reasons[0], "backlog at cap 1")
}

func TestRunEmergencyPreemptsMaintenanceSlot(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01"},
		model.Trainset{ID: "TS-02",
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelMaintenance, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelStandby, decisions[0].Label)
	require.Contains(t, decisions[0].Reasons[0], "preempted by emergency repair")
	require.Equal(t, model.LabelEmergencyRepair, decisions[1].Label)
	require.Empty(t, decisions[1].ConflictTags)
}

func TestRunStagesUnclearedStandbysToMaintenance(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01"},
		model.Trainset{ID: "TS-02"},
		model.Trainset{ID: "TS-03"},
	)
	decisions := decisionsFor(snap, model.LabelStandby, model.LabelStandby, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelMaintenance, decisions[0].Label)
	require.Equal(t, model.LabelMaintenance, decisions[1].Label)
	require.Equal(t, model.LabelStandby, decisions[2].Label, "capacity exhausted")
	require.Contains(t, decisions[0].Reasons[0], "no valid clearance")
}

func TestRunStagesUnfitStandbyToMaintenance(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 7.5},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 1.0},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelInService, decisions[0].Label)
	require.Equal(t, model.LabelMaintenance, decisions[1].Label)
	require.Contains(t, decisions[1].Reasons[0], "fitness score 1.0 below service minimum")
}

func TestRunFloorNeverPromotesUnfitUnit(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 1.5},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelStandby)

	res, err := Run(decisions, snap, Limits{MinService: 2, MaxMaintenance: 2}, testNow)
	require.ErrorIs(t, err, ErrUnresolvable)
	require.Contains(t, res.Violations, "service 1 below floor 2")
	require.Equal(t, model.LabelMaintenance, decisions[1].Label,
		"the floor cannot pull an unfit unit into service")
}

func TestRunDefersMaintenanceForFloorWhenStandbysRunOut(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityLow}}},
		model.Trainset{ID: "TS-02"},
	)
	decisions := decisionsFor(snap, model.LabelMaintenance, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelInService, decisions[0].Label)
	require.Contains(t, decisions[0].Reasons[0], "service floor")
	require.Equal(t, model.LabelMaintenance, decisions[1].Label, "uncleared spare staged instead")
}

func TestRunDemotesLowestPriorityFirst(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityLow}}},
		model.Trainset{ID: "TS-03", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J2", Priority: model.PriorityHigh}}},
		model.Trainset{ID: "TS-04", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J3", Priority: model.PriorityMedium}}},
	)
	decisions := decisionsFor(snap,
		model.LabelInService, model.LabelMaintenance, model.LabelMaintenance, model.LabelMaintenance)

	_, err := Run(decisions, snap, Limits{MinService: 1, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelStandby, decisions[1].Label, "low priority demoted")
	require.Equal(t, model.LabelMaintenance, decisions[2].Label, "high priority kept")
	require.Equal(t, model.LabelStandby, decisions[3].Label, "medium priority demoted")
	require.Contains(t, decisions[1].Reasons[0], "over cap 1")
}

func TestRunDemotesMaintenanceBeforeEmergency(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityHigh}}},
		model.Trainset{ID: "TS-02",
			OpenJobs: []model.JobCard{{ID: "J2", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelMaintenance, model.LabelEmergencyRepair)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelStandby, decisions[0].Label)
	require.Equal(t, model.LabelEmergencyRepair, decisions[1].Label)
	require.Empty(t, decisions[1].ConflictTags)
}

func TestRunDefersEmergencyOnlyWhenAlone(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01",
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityEmergency}}},
		model.Trainset{ID: "TS-02",
			OpenJobs: []model.JobCard{{ID: "J2", Priority: model.PriorityEmergency}}},
	)
	decisions := decisionsFor(snap, model.LabelEmergencyRepair, model.LabelEmergencyRepair)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelStandby, decisions[0].Label)
	require.Contains(t, decisions[0].ConflictTags, TagDeferredEmergency)
	require.Equal(t, model.LabelEmergencyRepair, decisions[1].Label)
}

func TestRunRelabelsOrphanEmergencyRepair(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8,
			OpenJobs: []model.JobCard{{ID: "J1", Priority: model.PriorityMedium}}},
	)
	decisions := decisionsFor(snap, model.LabelEmergencyRepair)

	_, err := Run(decisions, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelMaintenance, decisions[0].Label)
	require.Contains(t, decisions[0].Reasons[0], "without an open emergency job")
}

func TestRunForcesExpiringFitnessWithBackfill(t *testing.T) {
	expiring := map[model.Department]time.Time{
		model.DeptRollingStock: testNow.Add(7 * 24 * time.Hour),
	}
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8, FitnessExpiry: expiring},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testNow.Add(90 * 24 * time.Hour),
			}},
		model.Trainset{ID: "TS-03", Cleared: true, FitnessScore: 8,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testNow.Add(90 * 24 * time.Hour),
			}},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelInService, model.LabelStandby)

	_, err := Run(decisions, snap, Limits{MinService: 2, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelMaintenance, decisions[0].Label)
	require.Contains(t, decisions[0].Reasons[0], "fitness expires 2025-06-08")
	require.Equal(t, model.LabelInService, decisions[2].Label, "standby backfills the floor")
	require.Empty(t, decisions[0].ConflictTags)
}

func TestRunTagsExpiringWhenFloorBlocks(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testNow.Add(5 * 24 * time.Hour),
			}},
		model.Trainset{ID: "TS-02", Cleared: true, FitnessScore: 8,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testNow.Add(90 * 24 * time.Hour),
			}},
	)
	decisions := decisionsFor(snap, model.LabelInService, model.LabelInService)

	_, err := Run(decisions, snap, Limits{MinService: 2, MaxMaintenance: 2}, testNow)
	require.NoError(t, err)

	require.Equal(t, model.LabelInService, decisions[0].Label)
	require.Contains(t, decisions[0].ConflictTags, TagExpiringFitness)
	require.Contains(t, decisions[0].Reasons[0], "service floor blocks maintenance")
}

func TestRunAllUnclearedIsInfeasible(t *testing.T) {
	snap := snapOf(
		model.Trainset{ID: "TS-01"},
		model.Trainset{ID: "TS-02"},
		model.Trainset{ID: "TS-03"},
	)
	decisions := decisionsFor(snap,
		model.LabelMaintenance, model.LabelMaintenance, model.LabelMaintenance)

	res, err := Run(decisions, snap, Limits{MinService: 2, MaxMaintenance: 5}, testNow)
	require.ErrorIs(t, err, ErrUnresolvable)
	require.Contains(t, res.Violations, "service 0 below floor 2")

	for i := range decisions {
		require.Equal(t, model.LabelMaintenance, decisions[i].Label)
	}
}

func TestRunLengthMismatch(t *testing.T) {
	snap := snapOf(model.Trainset{ID: "TS-01", Cleared: true, FitnessScore: 8})

	_, err := Run(nil, snap, Limits{MinService: 0, MaxMaintenance: 1}, testNow)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnresolvable)
}
