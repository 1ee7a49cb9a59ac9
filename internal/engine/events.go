// SPDX-License-Identifier: AGPL-3.0-only
package engine

import (
	"sync"
	"time"

	"github.com/jolks/pipetask/internal/model"
)

// Bus fans typed lifecycle events out to any number of subscribers.
// Publishing never blocks: a subscriber whose channel is full misses the
// event rather than stalling the engine.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan model.Event
	next int
}

// NewBus creates an event bus with no subscribers
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan model.Event)}
}

// Subscribe registers a new subscriber with the given channel buffer.
// The returned cancel function removes the subscription and closes the
// channel; call it exactly once.
func (b *Bus) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers e to every subscriber. Events published from a single
// goroutine are observed in publish order per subscriber.
func (b *Bus) Publish(e model.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
