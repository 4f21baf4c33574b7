// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Topic names for the event broadcaster. Keep these stable: external
// subscribers (websockets, notifiers) key off them.
const (
	TopicPlanStarted    = "plan.started"
	TopicPlanProgress   = "plan.progress"
	TopicPlanCompleted  = "plan.completed"
	TopicPlanFailed     = "plan.failed"
	TopicPlanCancelled  = "plan.cancelled"
	TopicAlertCritical  = "alert.critical"
	TopicAlertWarning   = "alert.warning"
	TopicConflict       = "ingestion.conflict"
	TopicSourceError    = "ingestion.source.error"
)

// PlanEvent is published on the plan.* topics while a cycle runs.
type PlanEvent struct {
	PlanID   string    `json:"planId"`
	Depot    string    `json:"depot"`
	Progress int       `json:"progress"` // percent, 0..100
	Phase    string    `json:"phase,omitempty"`
	Cause    string    `json:"cause,omitempty"`    // failure cause tag
	LastGood string    `json:"lastGood,omitempty"` // previous current-plan id on failure
	At       time.Time `json:"at"`
}

// AlertEvent is published on alert.critical / alert.warning.
type AlertEvent struct {
	TrainsetID string    `json:"trainsetId"`
	Component  string    `json:"component,omitempty"`
	Tag        string    `json:"tag"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// ConflictEvent is published on ingestion.conflict when two sources collide.
type ConflictEvent struct {
	ConflictID string    `json:"conflictId"`
	FieldPath  string    `json:"fieldPath"`
	Resolution string    `json:"resolution"`
	At         time.Time `json:"at"`
}

// SourceErrorEvent is published on ingestion.source.error when a source
// trips its failure threshold and is taken out of rotation.
type SourceErrorEvent struct {
	SourceID string    `json:"sourceId"`
	Failures int       `json:"failures"`
	LastErr  string    `json:"lastErr,omitempty"`
	At       time.Time `json:"at"`
}
