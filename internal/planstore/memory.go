// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package planstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ManuGH/inductd/internal/model"
)

// MemoryStore keeps plans in process memory, for tests and ephemeral
// runs. Records are held marshaled so reads never alias writes.
type MemoryStore struct {
	mu      sync.RWMutex
	plans   map[string][]byte
	current map[string]string // depot -> plan id
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		plans:   make(map[string][]byte),
		current: make(map[string]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Put(ctx context.Context, plan *model.InductionPlan) error {
	buf, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[plan.ID]; ok {
		return ErrExists
	}
	m.plans[plan.ID] = buf
	m.current[plan.Depot] = plan.ID
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*model.InductionPlan, error) {
	m.mu.RLock()
	buf, ok := m.plans[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var out model.InductionPlan
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MemoryStore) Current(ctx context.Context, depot string) (*model.InductionPlan, error) {
	m.mu.RLock()
	id, ok := m.current[depot]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) List(ctx context.Context, depot string, limit int) ([]*model.InductionPlan, error) {
	m.mu.RLock()
	var plans []*model.InductionPlan
	for _, buf := range m.plans {
		var rec model.InductionPlan
		if err := json.Unmarshal(buf, &rec); err != nil {
			continue
		}
		if rec.Depot == depot {
			plans = append(plans, &rec)
		}
	}
	m.mu.RUnlock()
	sort.Slice(plans, func(a, b int) bool {
		return plans[a].GeneratedAt.After(plans[b].GeneratedAt)
	})
	if limit > 0 && len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

var _ Store = (*MemoryStore)(nil)
