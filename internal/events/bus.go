package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives a published payload.
type Handler func(data EventData)

// Bus is an in-process publish/subscribe dispatcher. Subscribers register
// for one topic or for Wildcard. Delivery is synchronous in registration
// order; handler panics are swallowed so a misbehaving subscriber cannot
// take down the publisher.
type Bus struct {
	mu          sync.Mutex
	subscribers map[EventType][]Handler
	log         zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for a topic. Use Wildcard to receive
// every event.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers data to the topic's subscribers and then to wildcard
// subscribers. The subscriber list is copied under the lock; handlers run
// outside it, so a handler may itself subscribe or publish.
func (b *Bus) Publish(data EventData) {
	eventType := data.EventType()

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subscribers[eventType])+len(b.subscribers[Wildcard]))
	handlers = append(handlers, b.subscribers[eventType]...)
	if eventType != Wildcard {
		handlers = append(handlers, b.subscribers[Wildcard]...)
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		b.deliver(eventType, handler, data)
	}
}

func (b *Bus) deliver(eventType EventType, handler Handler, data EventData) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(eventType)).
				Interface("panic", r).
				Msg("Subscriber panicked; event dropped for this subscriber")
		}
	}()
	handler(data)
}

// SubscriberCount returns the number of handlers registered for a topic.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[eventType])
}
