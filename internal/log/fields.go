// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID      = "run_id"
	FieldPlanID     = "plan_id"
	FieldSourceID   = "source_id"
	FieldTrainsetID = "trainset_id"
	FieldDepot      = "depot"
	FieldConflictID = "conflict_id"
	FieldRequestID  = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPhase     = "phase"
	FieldTopic     = "topic"
	FieldSolver    = "solver"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Fleet fields
	FieldLabel = "label"
	FieldBay   = "bay"
	FieldTrack = "track"
)
