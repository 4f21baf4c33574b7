// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"sync"

	"github.com/ManuGH/inductd/internal/metrics"
)

const subscriberBuffer = 64

// MemoryBus is an in-process pub/sub with best-effort delivery. Slow
// subscribers lose messages rather than blocking publishers.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscriber
	closed bool
}

type memorySubscriber struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	once  sync.Once
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscriber)}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, msg Message) error {
	b.mu.RLock()
	subs := append([]*memorySubscriber(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			// drop on backpressure to avoid producer blockage
			metrics.IncBusDrop(topic)
		}
	}
	metrics.IncBusPublished(topic)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	sub := &memorySubscriber{
		bus:   b,
		topic: topic,
		ch:    make(chan Message, subscriberBuffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub, nil
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

// Close unsubscribes everything and stops accepting publishes reaching
// subscribers. Publish after Close is a no-op delivery-wise.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string][]*memorySubscriber)
	b.closed = true
	b.mu.Unlock()

	for _, list := range subs {
		for _, sub := range list {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return nil
}

func (s *memorySubscriber) C() <-chan Message { return s.ch }

func (s *memorySubscriber) Close() error {
	s.bus.mu.Lock()
	list := s.bus.subs[s.topic]
	out := list[:0]
	for _, c := range list {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.bus.subs, s.topic)
	} else {
		s.bus.subs[s.topic] = out
	}
	s.bus.mu.Unlock()

	s.once.Do(func() { close(s.ch) })
	return nil
}
