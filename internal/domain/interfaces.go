package domain

import (
	"context"
)

// OrderRepository is the persisted order store used by the pipeline.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	// Update applies a partial update only if the order is still in upd.ExpectedStatus.
	// It returns ErrDuplicateTransition when the guard does not match.
	Update(ctx context.Context, id string, upd OrderUpdate) error
	FindByID(ctx context.Context, id string) (*Order, error)
}

// StatusPublisher broadcasts a persisted transition to the order's topic.
type StatusPublisher interface {
	Publish(ctx context.Context, ev StatusEvent) error
}

// JobQueue is the producer side of the queue transport.
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload JobPayload) (string, error)
}

// Delivery is one job handed to a worker slot by the queue transport.
type Delivery interface {
	Job() Job
	ReportProgress(pct int)
	// Ack marks the job completed.
	Ack()
	// Nack hands the error back so the transport applies its retry policy.
	Nack(err error)
}

// JobSource is the consumer side of the queue transport.
type JobSource interface {
	Dequeue(ctx context.Context) (Delivery, error)
}

// ProgressReporter receives fractional progress at pipeline checkpoints.
type ProgressReporter interface {
	ReportProgress(pct int)
}
