// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cycle

import (
	"math"

	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
)

const (
	// basePunctuality is the floor of the punctuality estimate; deploying
	// nominalService units in revenue service adds punctualitySpan on top.
	basePunctuality = 0.95
	punctualitySpan = 0.045
	nominalService  = 20

	// revenuePerService prices one service slot per night, weighed against
	// branding penalties and pending repair estimates.
	revenuePerService = 2000
)

// Risk weights: deferred emergencies dominate, expiring-fitness
// overrides and a broken service floor follow, open-job volume trails.
const (
	riskDeferredEmergency = 0.15
	riskExpiringFitness   = 0.05
	riskFloorShortfall    = 0.10
	riskOpenJob           = 0.02
)

// Confidence blend: a feasible plan starts from the base, constraint
// satisfaction and solver agreement fill the rest of the scale.
const (
	confidenceBase    = 0.5
	weightConstraints = 0.2
	weightAgreement   = 0.3
)

// buildMetrics aggregates the operator-facing plan summary.
func buildMetrics(snap *model.FleetSnapshot, decisions []model.Decision, conditions []model.ComponentCondition, arranged stabling.Result, lim repair.Limits, baselineMoves int) model.PlanMetrics {
	m := model.PlanMetrics{
		ShuntingMinutes:   arranged.TurnOutMinutes,
		ShuntingEnergyKWh: arranged.EnergyKWh,
	}

	service, maintenance := 0, 0
	var scoreSum float64
	for i := range decisions {
		scoreSum += decisions[i].Score
		switch decisions[i].Label {
		case model.LabelInService:
			service++
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
	}
	if n := len(decisions); n > 0 {
		m.TotalScore = scoreSum / float64(n)
		m.ServiceAvailability = float64(service) / float64(n)
	}
	if lim.MaxMaintenance > 0 {
		m.MaintenanceEfficiency = float64(maintenance) / float64(lim.MaxMaintenance)
	}

	m.EnergySavingsKWh = float64(baselineMoves)*stabling.EnergyBaseKWh - arranged.EnergyKWh
	m.BrandingCompliance = brandingCompliance(snap)
	m.PredictedPunctuality = predictedPunctuality(service)
	m.RiskScore = riskScore(snap, decisions, lim, service)
	m.CostBenefit = costBenefit(snap, conditions, service)
	return m
}

// brandingCompliance averages contract compliance across branded units;
// an unbranded fleet scores full compliance.
func brandingCompliance(snap *model.FleetSnapshot) float64 {
	sum, n := 0.0, 0
	for i := range snap.Trainsets {
		if b := snap.Trainsets[i].Branding; b != nil {
			sum += b.Compliance()
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

func predictedPunctuality(service int) float64 {
	return basePunctuality + punctualitySpan*math.Min(1, float64(service)/nominalService)
}

// riskScore saturates the plan's residual operational exposure into
// [0,1].
func riskScore(snap *model.FleetSnapshot, decisions []model.Decision, lim repair.Limits, service int) float64 {
	deferred, expiring := 0, 0
	for i := range decisions {
		for _, tag := range decisions[i].ConflictTags {
			switch tag {
			case repair.TagDeferredEmergency:
				deferred++
			case repair.TagExpiringFitness:
				expiring++
			}
		}
	}
	jobs := 0
	for i := range snap.Trainsets {
		jobs += len(snap.Trainsets[i].OpenJobs)
	}
	short := 0
	if s := lim.MinService - service; s > 0 {
		short = s
	}
	r := riskDeferredEmergency*float64(deferred) +
		riskExpiringFitness*float64(expiring) +
		riskFloorShortfall*float64(short) +
		riskOpenJob*float64(jobs)
	return math.Min(1, r)
}

// costBenefit compares projected service revenue against the financial
// exposure riding on the fleet: penalties of behind-target branding
// contracts plus repair estimates for POOR and CRITICAL components.
func costBenefit(snap *model.FleetSnapshot, conditions []model.ComponentCondition, service int) float64 {
	var exposure float64
	for i := range snap.Trainsets {
		if b := snap.Trainsets[i].Branding; b != nil && b.Compliance() < 1 {
			exposure += math.Abs(b.Penalty)
		}
	}
	for i := range conditions {
		if l := conditions[i].Level; l == model.ConditionPoor || l == model.ConditionCritical {
			exposure += conditions[i].RepairCost
		}
	}
	return float64(service) * revenuePerService / math.Max(1, exposure)
}

// confidence blends hard-constraint satisfaction with solver agreement.
// A feasible plan starts from the base and can reach 1.0; an infeasible
// one loses the base and stays below it.
func confidence(snap *model.FleetSnapshot, decisions []model.Decision, outcomes []solver.Outcome, lim repair.Limits, infeasible bool) float64 {
	if len(decisions) == 0 {
		return 1
	}
	c := weightConstraints*constraintSatisfaction(snap, decisions, lim) +
		weightAgreement*solverAgreement(len(decisions), outcomes)
	if infeasible {
		if c >= confidenceBase {
			c = confidenceBase - 0.01
		}
		return c
	}
	return confidenceBase + c
}

// constraintSatisfaction is the passed fraction of the four hard checks:
// service floor, maintenance cap, emergency handling, service eligibility.
func constraintSatisfaction(snap *model.FleetSnapshot, decisions []model.Decision, lim repair.Limits) float64 {
	service, maintenance := 0, 0
	emergencyOK, clearanceOK := true, true
	for i := range decisions {
		ts := &snap.Trainsets[i]
		switch decisions[i].Label {
		case model.LabelInService:
			service++
			if !ts.ServiceFit() {
				clearanceOK = false
			}
		case model.LabelMaintenance, model.LabelEmergencyRepair:
			maintenance++
		}
		if ts.HasEmergencyJob() {
			if l := decisions[i].Label; l != model.LabelEmergencyRepair && l != model.LabelStandby {
				emergencyOK = false
			}
		}
	}
	passed := 0
	if service >= lim.MinService {
		passed++
	}
	if maintenance <= lim.MaxMaintenance {
		passed++
	}
	if emergencyOK {
		passed++
	}
	if clearanceOK {
		passed++
	}
	return float64(passed) / 4
}

// solverAgreement is the share of trainsets on which every algorithm in
// the ensemble voted the same label. A single-outcome run carries no
// agreement signal and scores neutral.
func solverAgreement(n int, outcomes []solver.Outcome) float64 {
	if n == 0 || len(outcomes) < 2 {
		return 0.5
	}
	agreed := 0
	for i := 0; i < n; i++ {
		same := true
		for k := 1; k < len(outcomes); k++ {
			if i >= len(outcomes[0].Labels) || i >= len(outcomes[k].Labels) ||
				outcomes[k].Labels[i] != outcomes[0].Labels[i] {
				same = false
				break
			}
		}
		if same {
			agreed++
		}
	}
	return float64(agreed) / float64(n)
}
