// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// ConflictResolution states how an ingestion conflict was settled.
type ConflictResolution string

const (
	ResolutionPending       ConflictResolution = "PENDING"
	ResolutionAutoPriority  ConflictResolution = "AUTO_PRIORITY"
	ResolutionAutoTimestamp ConflictResolution = "AUTO_TIMESTAMP"
	ResolutionManual        ConflictResolution = "MANUAL"
)

// ConflictCandidate is one source's claim on a contested field.
type ConflictCandidate struct {
	SourceID  string    `json:"sourceId"`
	Value     string    `json:"value"`
	Priority  int       `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Conflict records two sources disagreeing on the same field within the
// conflict window. Retained until resolved plus seven days.
type Conflict struct {
	ID            string              `json:"id"`
	FieldPath     string              `json:"fieldPath"` // e.g. "trainset/TS-07/status"
	Candidates    []ConflictCandidate `json:"candidates"`
	Resolution    ConflictResolution  `json:"resolution"`
	ResolvedValue string              `json:"resolvedValue,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	ResolvedAt    *time.Time          `json:"resolvedAt,omitempty"`
}
