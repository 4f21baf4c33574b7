// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fleet owns the live depot state. A single writer goroutine
// serializes every mutation; callers submit operations over channels and
// receive value copies back, so solvers and the ops surface never observe
// a half-applied delta.
package fleet

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned once the store writer has shut down.
var ErrClosed = errors.New("fleet: store closed")

// ErrUnknownConflict is returned when resolving a conflict id that does not
// exist or has already been resolved.
var ErrUnknownConflict = errors.New("fleet: unknown conflict")

// ValidationError rejects a delta field without touching store state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fleet: invalid %s: %s", e.Field, e.Reason)
}

// ApplyStatus is the outcome class of a delta application.
type ApplyStatus string

const (
	ApplyApplied    ApplyStatus = "APPLIED"
	ApplyRejected   ApplyStatus = "REJECTED"
	ApplyConflicted ApplyStatus = "CONFLICTED"
)

// ApplyResult reports how the store handled one delta. A conflicted result
// still names the winning value through the recorded conflict.
type ApplyResult struct {
	Status     ApplyStatus `json:"status"`
	ConflictID string      `json:"conflictId,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
}

// SourceMeta identifies the origin of a delta for conflict resolution.
// Manual carries the override flag: override sources win priority ties.
type SourceMeta struct {
	SourceID  string
	Priority  int
	Timestamp time.Time
	Manual    bool
}

// Options bound the store. Zero values fall back to the defaults below.
type Options struct {
	Depot          string
	SensorRing     int
	ConflictWindow time.Duration
}

const (
	defaultSensorRing     = 1000
	defaultConflictWindow = 5 * time.Second
	defaultDepot          = "MUTTOM"

	// Resolved conflicts are kept for audit, then swept.
	conflictRetention = 7 * 24 * time.Hour
	// Window for duplicate-delta suppression.
	idempotencyRetention = 10 * time.Minute
	janitorInterval      = time.Hour
)

func (o Options) withDefaults() Options {
	if o.Depot == "" {
		o.Depot = defaultDepot
	}
	if o.SensorRing <= 0 {
		o.SensorRing = defaultSensorRing
	}
	if o.ConflictWindow <= 0 {
		o.ConflictWindow = defaultConflictWindow
	}
	return o
}
