// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// ComponentTag names a monitored trainset subsystem.
type ComponentTag string

const (
	ComponentEngine        ComponentTag = "engine"
	ComponentBrakes        ComponentTag = "brakes"
	ComponentDoors         ComponentTag = "doors"
	ComponentHVAC          ComponentTag = "hvac"
	ComponentBattery       ComponentTag = "battery"
	ComponentSuspension    ComponentTag = "suspension"
	ComponentElectrical    ComponentTag = "electrical"
	ComponentCommunication ComponentTag = "communication"
)

// ConditionLevel grades a component from healthy to failing.
type ConditionLevel string

const (
	ConditionGood     ConditionLevel = "GOOD"
	ConditionFair     ConditionLevel = "FAIR"
	ConditionPoor     ConditionLevel = "POOR"
	ConditionCritical ConditionLevel = "CRITICAL"
)

// ComponentCondition is the rule-based health assessment of one subsystem,
// derived from the trainset's recent sensor aggregate.
type ComponentCondition struct {
	TrainsetID  string         `json:"trainsetId"`
	Component   ComponentTag   `json:"component"`
	Level       ConditionLevel `json:"level"`
	FailureProb float64        `json:"failureProb"` // [0,1]
	RULDays     int            `json:"rulDays"`     // remaining useful life
	Urgency     float64        `json:"urgency"`     // [0,1]
	RepairCost  float64        `json:"repairCost"`  // estimate, depot currency
	Detail      string         `json:"detail,omitempty"`
}
