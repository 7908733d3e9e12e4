// Package eventbus provides the process-wide typed publish/subscribe fan-out
// for push events. A single bus lets independent screens share one event
// stream without threading callbacks through every constructor.
package eventbus

import (
	"context"
	"sync"

	"github.com/goteamwork/roomsync/internal/logging"
	"github.com/goteamwork/roomsync/internal/model"
)

// Handler consumes one decoded push event.
type Handler func(ev model.Event)

// Subscription identifies one registered handler for later removal.
type Subscription struct {
	eventType model.EventType
	id        uint64
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus fans events out to handlers by event type. Handlers for one event run
// synchronously in registration order; a panicking handler is recovered and
// logged so the remaining handlers still run.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[model.EventType][]entry
	logger   logging.Logger
}

// New creates an empty bus.
func New(logger logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[model.EventType][]entry),
		logger:   logger,
	}
}

// Subscribe registers handler for eventType and returns its subscription
// token.
func (b *Bus) Subscribe(eventType model.EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], entry{id: b.nextID, handler: handler})
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes the handler identified by sub. Unknown tokens are a
// no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler currently registered for the event's
// type, in registration order.
func (b *Bus) Publish(ev model.Event) {
	eventType := ev.EventType()
	b.mu.Lock()
	entries := make([]entry, len(b.handlers[eventType]))
	copy(entries, b.handlers[eventType])
	b.mu.Unlock()

	for _, e := range entries {
		b.invoke(eventType, e, ev)
	}
}

func (b *Bus) invoke(eventType model.EventType, e entry, ev model.Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error(context.Background(), "event handler panicked",
				"eventType", string(eventType), "panic", r)
		}
	}()
	e.handler(ev)
}

// SubscriberCount reports the number of handlers registered for eventType.
func (b *Bus) SubscriberCount(eventType model.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[eventType])
}
