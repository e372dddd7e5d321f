// Package events is the per-canvas mutation feed. Every store mutation
// is published as a discrete event; subscribed clients (canvas UIs)
// receive diffs and reconcile their optimistic local state against
// them. This models the reactive state store's live subscriptions
// without depending on a specific reactive-database product.
package events

import (
	"sync"
	"time"

	"github.com/artloom/artloom/pkg/models"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that
// falls this far behind starts dropping events and must refetch.
const subscriberBuffer = 64

// Bus fans mutations out to per-canvas subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan models.Mutation // canvasID → subID → channel
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan models.Mutation)}
}

// Subscribe registers a subscriber for one canvas. The returned cancel
// function must be called when the subscriber goes away.
func (b *Bus) Subscribe(canvasID string) (<-chan models.Mutation, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[canvasID] == nil {
		b.subs[canvasID] = make(map[int]chan models.Mutation)
	}
	id := b.next
	b.next++
	ch := make(chan models.Mutation, subscriberBuffer)
	b.subs[canvasID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[canvasID]; m != nil {
			if c, ok := m[id]; ok {
				delete(m, id)
				close(c)
			}
			if len(m) == 0 {
				delete(b.subs, canvasID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers a mutation to every subscriber of its canvas.
// Non-blocking: a full subscriber buffer drops the event rather than
// stalling the mutating request.
func (b *Bus) Publish(mut models.Mutation) {
	if mut.Timestamp.IsZero() {
		mut.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[mut.CanvasID] {
		select {
		case ch <- mut:
		default:
			log.Warn().
				Str("canvas", mut.CanvasID).
				Str("type", string(mut.Type)).
				Msg("Slow mutation subscriber, event dropped")
		}
	}
}

// SubscriberCount returns the number of live subscribers for a canvas.
func (b *Bus) SubscriberCount(canvasID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[canvasID])
}
