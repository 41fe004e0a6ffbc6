// Package event provides the in-memory bus that lifecycle and discovery
// components publish to. Metrics and audit logging subscribe to it.
package event

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by cabletrack components.
const (
	TopicCableState    = "cable.state_changed"
	TopicCableReplaced = "cable.replaced"
	TopicIssue         = "issue.recorded"
	TopicTicket        = "ticket.action"
	TopicFabric        = "fabric.port_command"
	TopicRunCompleted  = "discovery.completed"
)

// Event is one message on the bus.
type Event struct {
	Topic     string
	Source    string // Component that emitted the event
	Timestamp time.Time
	Payload   any // Type depends on topic
}

// Handler processes events from the bus.
type Handler func(ctx context.Context, event Event)

type subscription struct {
	id      uint64
	topic   string // empty matches every topic
	handler Handler
}

// Bus delivers events to subscribers in subscription order. Publish is
// synchronous: every handler has returned before Publish does, so a CLI
// invocation never exits with undelivered events.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger
}

// NewBus returns an empty bus. A nil logger discards handler panics.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Publish hands event to every matching handler. Publishing on a nil bus is a
// no-op so components can be built without one.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.topic == "" || s.topic == event.Topic {
			b.deliver(ctx, s.handler, event)
		}
	}
}

// Subscribe registers handler for topic and returns a function removing it.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	return func() { b.remove(id) }
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) (unsubscribe func()) {
	return b.Subscribe("", handler)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
}

func (b *Bus) deliver(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
