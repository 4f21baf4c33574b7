// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scoring turns a fleet snapshot into the per-trainset objective
// coefficients the solvers maximize, and assesses component health from
// the sensor aggregates. Both are deterministic given the snapshot.
package scoring

import (
	"math"

	"github.com/ManuGH/inductd/internal/model"
)

// Objective weights. The coefficient rewards fitness, mileage balance,
// branding shortfall and low energy draw, and penalizes open work.
const (
	weightFitness  = 0.25
	weightMileage  = 0.20
	weightJobs     = 0.30
	weightBranding = 0.15
	weightEnergy   = 0.10

	// notClearedScore hard-demotes a trainset missing full clearance.
	notClearedScore = -10

	// energyNormKWh normalizes last-day traction energy into [0,1].
	energyNormKWh = 1000
)

// Vector computes the objective coefficient for every trainset, aligned
// with snapshot order.
func Vector(snap *model.FleetSnapshot) []float64 {
	mean := snap.MeanMileage()
	c := make([]float64, len(snap.Trainsets))
	for i := range snap.Trainsets {
		c[i] = Coefficient(&snap.Trainsets[i], mean)
	}
	return c
}

// Coefficient scores one trainset against the fleet mean mileage.
func Coefficient(t *model.Trainset, meanMileage float64) float64 {
	if !t.Cleared {
		return notClearedScore
	}

	c := weightFitness * t.FitnessScore

	// Mileage balance: full marks at the fleet mean, zero at or beyond
	// 100% deviation. A zero mean (empty or unmetered fleet) contributes
	// nothing rather than dividing by zero.
	if meanMileage > 0 {
		dev := math.Abs(float64(t.MileageKM)-meanMileage) / meanMileage
		if dev > 1 {
			dev = 1
		}
		c += weightMileage * (1 - dev)
	}

	c -= weightJobs * t.JobPriorityWeight()

	if t.Branding != nil && t.Branding.TargetHours > 0 {
		shortfall := 1 - t.Branding.ExposureHours/t.Branding.TargetHours
		if shortfall < 0 {
			shortfall = 0
		}
		c += weightBranding * shortfall
	}

	c += weightEnergy * (1 - t.EnergyKWh/energyNormKWh)

	return c
}
