// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	plansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_plans_total",
		Help: "Completed induction cycles by terminal result",
	}, []string{"result"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inductd_cycle_duration_seconds",
		Help:    "Wall-clock duration of a full induction cycle",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"mode"})

	solverDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inductd_solver_duration_seconds",
		Help:    "Per-solver runtime within the ensemble",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"solver"})

	repairIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inductd_repair_iterations",
		Help:    "Constraint-repair passes needed to reach a fixed point",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})

	planConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_plan_confidence",
		Help: "Confidence of the current induction plan",
	})

	planServiceCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_plan_service_count",
		Help: "Trainsets labelled IN_SERVICE in the current plan",
	})
)

// RecordPlan counts a finished cycle and its terminal result.
func RecordPlan(result string) {
	plansTotal.WithLabelValues(normalizePlanResult(result)).Inc()
}

// ObserveCycleDuration records the duration of one cycle run.
func ObserveCycleDuration(mode string, seconds float64) {
	cycleDuration.WithLabelValues(normalizeSolverMode(mode)).Observe(seconds)
}

// ObserveSolverDuration records one solver's runtime.
func ObserveSolverDuration(solver string, seconds float64) {
	solverDuration.WithLabelValues(normalizeSolverName(solver)).Observe(seconds)
}

// ObserveRepairIterations records how many repair passes a plan needed.
func ObserveRepairIterations(n int) {
	repairIterations.Observe(float64(n))
}

// SetPlanGauges publishes the headline numbers of the current plan.
func SetPlanGauges(confidence float64, serviceCount int) {
	planConfidence.Set(confidence)
	planServiceCount.Set(float64(serviceCount))
}

func normalizePlanResult(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "completed", "failed", "cancelled", "infeasible":
		return strings.ToLower(strings.TrimSpace(result))
	default:
		return "unknown"
	}
}

func normalizeSolverName(solver string) string {
	switch strings.ToLower(strings.TrimSpace(solver)) {
	case "ga", "sa", "lp", "fast":
		return strings.ToLower(strings.TrimSpace(solver))
	default:
		return "unknown"
	}
}

func normalizeSolverMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "nightly", "realtime", "scenario":
		return strings.ToLower(strings.TrimSpace(mode))
	default:
		return "unknown"
	}
}
