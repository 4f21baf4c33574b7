// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package planstore persists emitted induction plans. Records are
// immutable: a plan id is written once, and the per-depot current
// pointer advances to the newest plan.
package planstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/inductd/internal/model"
)

var (
	// ErrNotFound reports a missing plan id or an unset current pointer.
	ErrNotFound = errors.New("plan not found")
	// ErrExists rejects a second write under an already-stored plan id.
	ErrExists = errors.New("plan id already stored")
)

// Store is the plan persistence contract.
type Store interface {
	// Put stores the plan and moves the depot's current pointer to it.
	Put(ctx context.Context, plan *model.InductionPlan) error
	// Get returns the plan for an id.
	Get(ctx context.Context, id string) (*model.InductionPlan, error)
	// Current returns the depot's most recently stored plan.
	Current(ctx context.Context, depot string) (*model.InductionPlan, error)
	// List returns up to limit plans for a depot, newest first.
	List(ctx context.Context, depot string, limit int) ([]*model.InductionPlan, error)
	Close() error
}

// Open creates a Store for the configured backend. An empty backend
// falls back to the in-memory store.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
