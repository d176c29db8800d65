package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes a delivered event.
type Handler func(Event)

// DropHandler is invoked when a subscription is lost and will deliver no
// further events. It is never called after Unsubscribe.
type DropHandler func(error)

// Handle identifies an active subscription.
type Handle struct {
	id    string
	topic string
}

// Channel is the per-tenant broadcast topic: every message creation and case
// update is published here and delivered to all subscribers, including the
// client that caused the change.
type Channel interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(topic string, handler Handler, onDrop DropHandler) (*Handle, error)
	Unsubscribe(handle *Handle)
}

type subscriber struct {
	handler Handler
}

// inMemoryChannel delivers events synchronously within one process. Used in
// tests and when Redis is not configured.
type inMemoryChannel struct {
	mu     sync.RWMutex
	topics map[string]map[string]subscriber
}

// NewInMemoryChannel creates a process-local channel.
func NewInMemoryChannel() Channel {
	return &inMemoryChannel{topics: make(map[string]map[string]subscriber)}
}

func (c *inMemoryChannel) Publish(_ context.Context, topic string, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	c.mu.RLock()
	subs := make([]subscriber, 0, len(c.topics[topic]))
	for _, sub := range c.topics[topic] {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(event)
	}
	return nil
}

func (c *inMemoryChannel) Subscribe(topic string, handler Handler, _ DropHandler) (*Handle, error) {
	handle := &Handle{id: uuid.NewString(), topic: topic}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics[topic] == nil {
		c.topics[topic] = make(map[string]subscriber)
	}
	c.topics[topic][handle.id] = subscriber{handler: handler}
	return handle, nil
}

func (c *inMemoryChannel) Unsubscribe(handle *Handle) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics[handle.topic], handle.id)
}
