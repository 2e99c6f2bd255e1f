package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	jobsProcessed   atomic.Uint64
	jobsFailed      atomic.Uint64
	ordersConfirmed atomic.Uint64
	ordersFailed    atomic.Uint64
	eventsPublished atomic.Uint64
	eventsDropped   atomic.Uint64
	duplicatesSeen  atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	activeJobs        atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordJob records a finished job with its latency.
func (m *Metrics) RecordJob(latency time.Duration, failed bool) {
	m.jobsProcessed.Add(1)
	if failed {
		m.jobsFailed.Add(1)
	}
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordOrderOutcome records an order reaching a terminal status.
func (m *Metrics) RecordOrderOutcome(confirmed bool) {
	if confirmed {
		m.ordersConfirmed.Add(1)
	} else {
		m.ordersFailed.Add(1)
	}
}

// RecordPublished records a status event handed to the fan-out.
func (m *Metrics) RecordPublished() {
	m.eventsPublished.Add(1)
}

// RecordDropped records an event not delivered to a slow subscriber.
func (m *Metrics) RecordDropped() {
	m.eventsDropped.Add(1)
}

// RecordDuplicate records an ignored redelivered transition.
func (m *Metrics) RecordDuplicate() {
	m.duplicatesSeen.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// JobStarted and JobFinished track in-flight jobs.
func (m *Metrics) JobStarted() {
	m.activeJobs.Add(1)
}

func (m *Metrics) JobFinished() {
	m.activeJobs.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	JobsProcessed     uint64    `json:"jobsProcessed"`
	JobsFailed        uint64    `json:"jobsFailed"`
	OrdersConfirmed   uint64    `json:"ordersConfirmed"`
	OrdersFailed      uint64    `json:"ordersFailed"`
	EventsPublished   uint64    `json:"eventsPublished"`
	EventsDropped     uint64    `json:"eventsDropped"`
	DuplicatesSeen    uint64    `json:"duplicatesSeen"`
	AvgJobLatencyNs   int64     `json:"avgJobLatencyNs"`
	ActiveConnections int32     `json:"activeConnections"`
	ActiveJobs        int32     `json:"activeJobs"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		JobsProcessed:     m.jobsProcessed.Load(),
		JobsFailed:        m.jobsFailed.Load(),
		OrdersConfirmed:   m.ordersConfirmed.Load(),
		OrdersFailed:      m.ordersFailed.Load(),
		EventsPublished:   m.eventsPublished.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		DuplicatesSeen:    m.duplicatesSeen.Load(),
		AvgJobLatencyNs:   avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		ActiveJobs:        m.activeJobs.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.jobsProcessed.Store(0)
	m.jobsFailed.Store(0)
	m.ordersConfirmed.Store(0)
	m.ordersFailed.Store(0)
	m.eventsPublished.Store(0)
	m.eventsDropped.Store(0)
	m.duplicatesSeen.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.activeJobs.Store(0)
}
