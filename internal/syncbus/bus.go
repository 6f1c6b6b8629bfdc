// Package syncbus is the publish/subscribe channel that keeps per-user client state (cart,
// favorites, search history) consistent across every tab or device of a session.
package syncbus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing on or subscribing to a closed channel.
var ErrClosed = errors.New("syncbus: closed")

// Message announces that the value stored under Key changed. NewValue is the full serialised
// value (empty when the key was removed). Origin identifies the publisher so that it does not
// receive its own updates.
type Message struct {
	Key      string `json:"key"`
	NewValue string `json:"newValue"`
	Origin   string `json:"origin,omitempty"`
}

// Handler receives messages published by other origins.
type Handler func(Message)

// Channel is implemented by the in-memory and Redis backends.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers handler for messages whose Origin differs from origin.
	// The returned cancel function stops delivery and is safe to call more than once.
	Subscribe(ctx context.Context, origin string, handler Handler) (cancel func(), err error)
	// Last returns the most recent message published under key, so that a new subscriber can
	// start from the shared state instead of an empty one.
	Last(ctx context.Context, key string) (Message, bool, error)
	Close() error
}

type subscriber struct {
	origin  string
	handler Handler
}

// Memory delivers messages synchronously to in-process subscribers.
type Memory struct {
	mu     sync.RWMutex
	next   int
	subs   map[int]subscriber
	last   map[string]Message
	closed bool
}

// NewMemory constructs an in-process channel.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]subscriber), last: make(map[string]Message)}
}

// Publish records msg as the latest value of its key and fans it out to every subscriber
// with a different origin.
func (m *Memory) Publish(_ context.Context, msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.last[msg.Key] = msg
	targets := make([]Handler, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.origin != "" && sub.origin == msg.Origin {
			continue
		}
		targets = append(targets, sub.handler)
	}
	m.mu.Unlock()

	for _, handler := range targets {
		handler(msg)
	}
	return nil
}

// Subscribe registers handler until cancel is called.
func (m *Memory) Subscribe(_ context.Context, origin string, handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("syncbus: handler is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	id := m.next
	m.next++
	m.subs[id] = subscriber{origin: origin, handler: handler}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

// Last returns the latest message published under key.
func (m *Memory) Last(_ context.Context, key string) (Message, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Message{}, false, ErrClosed
	}
	msg, ok := m.last[key]
	return msg, ok, nil
}

// Close drops all subscribers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[int]subscriber)
	return nil
}
