package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// QueueOrderExecution is the name of the queue that carries swap jobs.
	QueueOrderExecution = "order-execution"

	// JobExecuteOrder is the job name the producer enqueues per order.
	JobExecuteOrder = "execute-order"
)

// JobPayload carries the original request so the processor can quote without a lookup.
type JobPayload struct {
	OrderID     string          `json:"orderId"`
	InputAsset  string          `json:"inputAsset"`
	OutputAsset string          `json:"outputAsset"`
	Amount      decimal.Decimal `json:"amount"`
}

// Job is one delivery of queued work.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Payload     JobPayload `json:"payload"`
	Attempt     int        `json:"attempt"` // 1-based
	MaxAttempts int        `json:"maxAttempts"`
	EnqueuedAt  time.Time  `json:"enqueuedAt"`
}

// IsFinalAttempt reports whether the transport will not redeliver after a failure.
func (j Job) IsFinalAttempt() bool {
	return j.Attempt >= j.MaxAttempts
}
