package stream

import (
	"log/slog"
	"sort"
	"sync"

	"order_engine/internal/domain"
	"order_engine/internal/infra"
)

// topic is the broadcast channel for one order id.
// mu serializes membership changes and dispatch for that order.
type topic struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// Registry tracks which subscribers listen to which orders.
// A topic exists (is open) iff it has at least one subscriber.
type Registry struct {
	mu      sync.Mutex // guards the topics map only
	topics  map[string]*topic
	metrics *infra.Metrics
}

// NewRegistry creates an empty registry. A nil metrics uses infra.GlobalMetrics.
func NewRegistry(metrics *infra.Metrics) *Registry {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Registry{
		topics:  make(map[string]*topic),
		metrics: metrics,
	}
}

// Subscribe attaches sub to orderID, opening the topic if needed.
func (r *Registry) Subscribe(sub *Subscriber, orderID string) error {
	if !sub.track(orderID) {
		return ErrSubscriberClosed
	}

	for {
		t := r.openTopic(orderID)
		t.mu.Lock()
		if t.closed {
			// lost a race with the last leave; drop the stale entry and retry
			t.mu.Unlock()
			r.dropTopic(orderID, t)
			continue
		}
		t.subs[sub] = struct{}{}
		t.mu.Unlock()
		break
	}

	// Disconnect may have snapshotted topics before we joined.
	if sub.isClosed() {
		r.leave(sub, orderID)
		return ErrSubscriberClosed
	}

	slog.Debug("Subscribed", slog.String("subscriber", sub.ID()), slog.String("order_id", orderID))
	return nil
}

// Unsubscribe detaches sub from orderID, closing the topic if it was the last subscriber.
func (r *Registry) Unsubscribe(sub *Subscriber, orderID string) {
	sub.untrack(orderID)
	r.leave(sub, orderID)
}

// Disconnect removes every subscription held by sub and closes it.
// Safe to call more than once.
func (r *Registry) Disconnect(sub *Subscriber) {
	r.disconnect(sub, nil)
}

func (r *Registry) disconnect(sub *Subscriber, reason error) {
	held := sub.close(reason)
	for _, orderID := range held {
		r.leave(sub, orderID)
	}
	if reason != nil {
		slog.Warn("Subscriber disconnected",
			slog.String("subscriber", sub.ID()),
			slog.Int("topics", len(held)),
			slog.Any("reason", reason),
		)
	}
}

// Dispatch delivers ev to every current subscriber of its order and returns
// how many received it. Subscribers whose buffer is full are disconnected.
func (r *Registry) Dispatch(ev domain.StatusEvent) int {
	r.mu.Lock()
	t := r.topics[ev.OrderID]
	r.mu.Unlock()
	if t == nil {
		return 0
	}

	var (
		delivered int
		slow      []*Subscriber
	)
	t.mu.Lock()
	for sub := range t.subs {
		switch sub.offer(ev) {
		case offerDelivered:
			delivered++
		case offerFull:
			slow = append(slow, sub)
		}
	}
	t.mu.Unlock()

	for _, sub := range slow {
		r.metrics.RecordDropped()
		r.disconnect(sub, ErrSlowSubscriber)
	}
	return delivered
}

// IsOpen reports whether orderID currently has an open topic.
func (r *Registry) IsOpen(orderID string) bool {
	r.mu.Lock()
	t := r.topics[orderID]
	r.mu.Unlock()
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && len(t.subs) > 0
}

// OpenTopics returns the order ids with an open topic, sorted.
func (r *Registry) OpenTopics() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.topics))
	for id := range r.topics {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// SubscriberCount returns the number of subscribers attached to orderID.
func (r *Registry) SubscriberCount(orderID string) int {
	r.mu.Lock()
	t := r.topics[orderID]
	r.mu.Unlock()
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func (r *Registry) openTopic(orderID string) *topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[orderID]
	if !ok {
		t = &topic{subs: make(map[*Subscriber]struct{})}
		r.topics[orderID] = t
		slog.Debug("Topic opened", slog.String("order_id", orderID))
	}
	return t
}

func (r *Registry) leave(sub *Subscriber, orderID string) {
	r.mu.Lock()
	t := r.topics[orderID]
	r.mu.Unlock()
	if t == nil {
		return
	}

	t.mu.Lock()
	if _, ok := t.subs[sub]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.subs, sub)
	last := len(t.subs) == 0
	if last {
		t.closed = true
	}
	t.mu.Unlock()

	if last {
		r.dropTopic(orderID, t)
		slog.Debug("Topic closed", slog.String("order_id", orderID))
	}
}

func (r *Registry) dropTopic(orderID string, t *topic) {
	r.mu.Lock()
	if r.topics[orderID] == t {
		delete(r.topics, orderID)
	}
	r.mu.Unlock()
}
