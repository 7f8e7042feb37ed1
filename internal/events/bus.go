// Package events implements the in-process lifecycle event bus shared
// by the category orchestrators and the service manager.
package events

import (
	"sync"
	"time"

	"github.com/cuemby/integr8/internal/spec"
)

// Topic identifies a lifecycle event kind.
type Topic string

const (
	TopicServiceStarting Topic = "service:starting"
	TopicServiceStarted  Topic = "service:started"
	TopicServiceFailed   Topic = "service:failed"
	TopicServiceStopping Topic = "service:stopping"
	TopicServiceStopped  Topic = "service:stopped"
)

// Event carries the payload published on a Topic.
type Event struct {
	Topic       Topic
	ServiceName string
	Service     *spec.Unit
	Error       error
	Timestamp   time.Time
}

// Handler receives events synchronously; it must not block for long,
// since Publish calls every subscribed handler inline on the
// publisher's goroutine.
type Handler func(Event)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

// Bus is a synchronous pub/sub broker for lifecycle events. Unlike an
// async channel-fed broker, Publish calls every handler inline so that
// ordering between "started" and "starting" events is observable by
// the caller without a race against a background dispatch loop.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic]map[uint64]Handler
	nextID   uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic]map[uint64]Handler)}
}

// Subscribe registers handler for topic and returns a Subscription that
// Unsubscribe accepts.
func (b *Bus) Subscribe(topic Topic, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[uint64]Handler)
	}
	b.handlers[topic][id] = handler
	return Subscription{topic: topic, id: id}
}

// Unsubscribe removes a subscription. It is idempotent.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.handlers[sub.topic]; ok {
		delete(m, sub.id)
	}
}

// UnsubscribeAll tears down every handler on every topic. The
// Environment Orchestrator calls this on stop to break the back-edge
// from orchestrators to the service manager.
func (b *Bus) UnsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Topic]map[uint64]Handler)
}

// Publish synchronously invokes every handler subscribed to ev.Topic.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[ev.Topic]))
	for _, h := range b.handlers[ev.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount returns the number of handlers registered on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
