// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the inductd application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Cycle attributes
	CycleDepotKey   = "cycle.depot"
	CycleModeKey    = "cycle.mode"
	CycleTriggerKey = "cycle.trigger"

	// Plan attributes
	PlanIDKey         = "plan.id"
	PlanDecisionsKey  = "plan.decisions"
	PlanServiceKey    = "plan.service_count"
	PlanConfidenceKey = "plan.confidence"
	PlanInfeasibleKey = "plan.infeasible"

	// Solver attributes
	SolverModeKey     = "solver.mode"
	SolverSeedKey     = "solver.seed"
	SolverOutcomesKey = "solver.outcomes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CycleAttributes creates induction-cycle span attributes.
func CycleAttributes(depot, mode, trigger string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if depot != "" {
		attrs = append(attrs, attribute.String(CycleDepotKey, depot))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(CycleModeKey, mode))
	}
	if trigger != "" {
		attrs = append(attrs, attribute.String(CycleTriggerKey, trigger))
	}
	return attrs
}

// PlanAttributes creates plan-related span attributes.
func PlanAttributes(planID string, decisions, serviceCount int, confidence float64, infeasible bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlanIDKey, planID),
		attribute.Int(PlanDecisionsKey, decisions),
		attribute.Int(PlanServiceKey, serviceCount),
		attribute.Float64(PlanConfidenceKey, confidence),
		attribute.Bool(PlanInfeasibleKey, infeasible),
	}
}

// SolverAttributes creates solver-related span attributes.
func SolverAttributes(mode string, seed int64, outcomes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SolverModeKey, mode),
		attribute.Int64(SolverSeedKey, seed),
		attribute.Int(SolverOutcomesKey, outcomes),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
