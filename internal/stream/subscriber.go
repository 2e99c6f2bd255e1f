package stream

import (
	"errors"
	"sync"

	"order_engine/internal/domain"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 64

var (
	// ErrSlowSubscriber is the reason a subscriber was disconnected after its buffer filled.
	ErrSlowSubscriber = errors.New("subscriber too slow, events buffer full")
	// ErrSubscriberClosed is returned when subscribing a disconnected subscriber.
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// Subscriber is one live-update connection. Events for every order it
// subscribed to arrive on a single FIFO channel.
type Subscriber struct {
	id     string
	events chan domain.StatusEvent
	done   chan struct{}

	mu     sync.Mutex
	topics map[string]struct{}
	closed bool
	err    error
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscriber{
		id:     uuid.NewString(),
		events: make(chan domain.StatusEvent, buffer),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

// Events delivers published events. It is never closed; select on Done as well.
func (s *Subscriber) Events() <-chan domain.StatusEvent {
	return s.events
}

// Done is closed once the subscriber is disconnected.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscriber was disconnected, nil for a normal close.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Topics returns the order ids the subscriber is attached to.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for id := range s.topics {
		out = append(out, id)
	}
	return out
}

func (s *Subscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscriber) track(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.topics[orderID] = struct{}{}
	return true
}

func (s *Subscriber) untrack(orderID string) {
	s.mu.Lock()
	delete(s.topics, orderID)
	s.mu.Unlock()
}

// close marks the subscriber closed and returns the topics it held.
// Only the first call returns topics.
func (s *Subscriber) close(reason error) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.err = reason
	close(s.done)

	held := make([]string, 0, len(s.topics))
	for id := range s.topics {
		held = append(held, id)
	}
	clear(s.topics)
	return held
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerFull
	offerClosed
)

// offer enqueues without blocking.
func (s *Subscriber) offer(ev domain.StatusEvent) offerResult {
	select {
	case <-s.done:
		return offerClosed
	default:
	}
	select {
	case s.events <- ev:
		return offerDelivered
	default:
		return offerFull
	}
}
