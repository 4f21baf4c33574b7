// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"github.com/ManuGH/inductd/internal/metrics"
)

// queue is the bounded buffer between pollers and the normalizer.
// When full it drops the oldest record so fresh data keeps flowing;
// drops are counted against the source of the dropped record.
type queue struct {
	ch chan Record
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 10000
	}
	return &queue{ch: make(chan Record, size)}
}

// push never blocks. On a full buffer it evicts the oldest record and
// retries; with a single consumer this converges immediately.
func (q *queue) push(r Record) {
	for {
		select {
		case q.ch <- r:
			metrics.SetQueueDepth(len(q.ch))
			return
		default:
		}
		select {
		case old := <-q.ch:
			metrics.IncQueueDrop(old.SourceID)
		default:
		}
	}
}

func (q *queue) records() <-chan Record { return q.ch }

func (q *queue) depth() int { return len(q.ch) }
