// Package broker fans out idea and objective events to SSE subscribers.
package broker

import (
	"sync"
)

// Event is a single message delivered to subscribers of an entity.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// subscriberBuffer bounds how far a slow consumer can fall behind before
// events are dropped for it.
const subscriberBuffer = 16

// Broker delivers events to per-entity subscriber channels. Publish never
// blocks: subscribers that cannot keep up lose events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func New() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe registers a new subscriber for entityID and returns its channel.
func (b *Broker) Subscribe(entityID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[entityID] == nil {
		b.subs[entityID] = map[chan Event]struct{}{}
	}
	b.subs[entityID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Broker) Unsubscribe(entityID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[entityID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, entityID)
	}
	close(ch)
}

// Publish delivers event to every current subscriber of entityID.
func (b *Broker) Publish(entityID string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[entityID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers entityID currently has.
func (b *Broker) SubscriberCount(entityID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[entityID])
}
