package bus

import (
	"sync"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

var _ Publisher = (*Bus)(nil)

// Publisher is the side of the bus handed to event producers.
type Publisher interface {
	Publish(event Event)
}

// Bus fans events out to any number of subscribers. Delivery is best-effort:
// an event published with no subscribers is lost, and a subscriber whose
// buffer is full misses the event rather than blocking the producer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// an unsubscribe function. Unsubscribing closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, DefaultBufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish delivers the event to every subscriber without blocking. Slow
// subscribers drop events; durable state lives in the store, not here.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop - the subscriber catches up from persisted status
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
