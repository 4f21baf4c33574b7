// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/model"
)

// defaultOverrideTTL bounds an override that arrives without an expiry.
const defaultOverrideTTL = 4 * time.Hour

// Override is a supervisor-authorized forcing of trainset fields. Until
// it expires it is re-asserted over any automatic source touching the
// same fields, so a later poll cannot silently undo a human decision.
type Override struct {
	TrainsetID   string      `json:"trainsetId"`
	AuthorizedBy string      `json:"authorizedBy"`
	Reason       string      `json:"reason,omitempty"`
	ExpiresAt    time.Time   `json:"expiresAt,omitempty"`
	Set          OverrideSet `json:"set"`

	// Filled by the fabric from the source the override arrived on.
	sourceID string
	priority int
}

// OverrideSet lists the fields a supervisor can force.
type OverrideSet struct {
	Status          *model.TrainsetStatus `json:"status,omitempty"`
	Cleared         *bool                 `json:"cleared,omitempty"`
	CurrentBay      *string               `json:"currentBay,omitempty"`
	NextDeparture   *time.Time            `json:"nextDeparture,omitempty"`
	NeedsCleaning   *bool                 `json:"needsCleaning,omitempty"`
	NeedsInspection *bool                 `json:"needsInspection,omitempty"`
	FitnessScore    *float64              `json:"fitnessScore,omitempty"`
}

func (s OverrideSet) empty() bool {
	return s.Status == nil && s.Cleared == nil && s.CurrentBay == nil &&
		s.NextDeparture == nil && s.NeedsCleaning == nil &&
		s.NeedsInspection == nil && s.FitnessScore == nil
}

func decodeOverride(b []byte) (Override, error) {
	var o Override
	if err := json.Unmarshal(b, &o); err != nil {
		return Override{}, fmt.Errorf("decode override: %w", err)
	}
	if o.TrainsetID == "" {
		return Override{}, fmt.Errorf("decode override: missing trainsetId")
	}
	if strings.TrimSpace(o.AuthorizedBy) == "" {
		return Override{}, fmt.Errorf("decode override: authorizedBy is required")
	}
	if o.Set.empty() {
		return Override{}, fmt.Errorf("decode override: sets no fields")
	}
	return o, nil
}

// delta expands the override into a store delta.
func (o Override) delta() fleet.Delta {
	return fleet.Delta{
		TrainsetID:      o.TrainsetID,
		Status:          o.Set.Status,
		Cleared:         o.Set.Cleared,
		CurrentBay:      o.Set.CurrentBay,
		NextDeparture:   o.Set.NextDeparture,
		NeedsCleaning:   o.Set.NeedsCleaning,
		NeedsInspection: o.Set.NeedsInspection,
		FitnessScore:    o.Set.FitnessScore,
	}
}

// touches reports whether d writes any field the override pins.
func (o Override) touches(d fleet.Delta) bool {
	switch {
	case o.Set.Status != nil && d.Status != nil:
		return true
	case o.Set.Cleared != nil && d.Cleared != nil:
		return true
	case o.Set.CurrentBay != nil && d.CurrentBay != nil:
		return true
	case o.Set.NextDeparture != nil && d.NextDeparture != nil:
		return true
	case o.Set.NeedsCleaning != nil && d.NeedsCleaning != nil:
		return true
	case o.Set.NeedsInspection != nil && d.NeedsInspection != nil:
		return true
	case o.Set.FitnessScore != nil && d.FitnessScore != nil:
		return true
	}
	return false
}

// overrideStore keeps active overrides keyed by trainset id. Entries
// evict themselves at the override expiry.
type overrideStore struct {
	c *cache.Cache
}

func newOverrideStore() *overrideStore {
	return &overrideStore{c: cache.New(defaultOverrideTTL, 10*time.Minute)}
}

func (s *overrideStore) put(o Override, now time.Time) bool {
	ttl := defaultOverrideTTL
	if !o.ExpiresAt.IsZero() {
		ttl = o.ExpiresAt.Sub(now)
	}
	if ttl <= 0 {
		return false
	}
	s.c.Set(o.TrainsetID, o, ttl)
	return true
}

func (s *overrideStore) active(trainsetID string) (Override, bool) {
	v, ok := s.c.Get(trainsetID)
	if !ok {
		return Override{}, false
	}
	o, ok := v.(Override)
	return o, ok
}

func (s *overrideStore) drop(trainsetID string) {
	s.c.Delete(trainsetID)
}
