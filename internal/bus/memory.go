package bus

import (
	"sync"
)

const defaultSubscriberCapacity = 100

// Event is one published event as seen by in-process subscribers.
type Event struct {
	Channel string
	Payload interface{}
}

// Memory is an in-process Publisher with buffered per-channel subscribers.
// It backs tests and broker-less runs; delivery is best-effort with
// drop-oldest semantics, matching the at-most-once contract of the bus.
type Memory struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
	closed      bool
	channelSize int
}

// Subscription represents an active channel subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// MemoryOption customizes Memory construction.
type MemoryOption func(*Memory)

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(capacity int) MemoryOption {
	return func(m *Memory) {
		if capacity > 0 {
			m.channelSize = capacity
		}
	}
}

// NewMemory constructs an in-process bus.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		subscribers: map[string][]*subscriber{},
		channelSize: defaultSubscriberCapacity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Subscribe registers for events on one channel.
func (m *Memory) Subscribe(channel string) Subscription {
	sub := &subscriber{ch: make(chan Event, m.channelSize)}
	m.mu.Lock()
	m.subscribers[channel] = append(m.subscribers[channel], sub)
	m.mu.Unlock()
	return Subscription{
		Events: sub.ch,
		cancel: func() { m.remove(channel, sub) },
	}
}

// Publish delivers the payload to every subscriber of the channel.
func (m *Memory) Publish(channel string, payload interface{}) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	subs := make([]*subscriber, len(m.subscribers[channel]))
	copy(subs, m.subscribers[channel])
	m.mu.Unlock()

	event := Event{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

// Close closes the bus and every subscriber channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	m.subscribers = map[string][]*subscriber{}
	return nil
}

func (m *Memory) remove(channel string, target *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[channel]
	for i, sub := range subs {
		if sub == target {
			m.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	target.close()
}

type subscriber struct {
	ch      chan Event
	closed  bool
	closeMu sync.Mutex
}

// deliver enqueues the event, dropping the oldest entry when full.
func (s *subscriber) deliver(event Event) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- event
	}
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
