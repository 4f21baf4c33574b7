// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/inductd/internal/model"
)

// Key layout: "plan:<planId>" holds the immutable JSON record,
// "current:<depot>" holds the id of the depot's newest plan.
const (
	planPrefix    = "plan:"
	currentPrefix = "current:"
)

// BadgerStore is the durable plan store.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the plan database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Put(ctx context.Context, plan *model.InductionPlan) error {
	buf, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	key := []byte(planPrefix + plan.ID)
	ptr := []byte(currentPrefix + plan.Depot)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, buf); err != nil {
			return err
		}
		return txn.Set(ptr, []byte(plan.ID))
	})
}

func (s *BadgerStore) Get(ctx context.Context, id string) (*model.InductionPlan, error) {
	var out model.InductionPlan
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(planPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) Current(ctx context.Context, depot string) (*model.InductionPlan, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(currentPrefix + depot))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *BadgerStore) List(ctx context.Context, depot string, limit int) ([]*model.InductionPlan, error) {
	var plans []*model.InductionPlan
	prefix := []byte(planPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec model.InductionPlan
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if rec.Depot != depot {
				continue
			}
			plans = append(plans, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(plans, func(a, b int) bool {
		return plans[a].GeneratedAt.After(plans[b].GeneratedAt)
	})
	if limit > 0 && len(plans) > limit {
		plans = plans[:limit]
	}
	return plans, nil
}

var _ Store = (*BadgerStore)(nil)
