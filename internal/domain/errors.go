package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// TransportError represents a queue, storage or connection failure.
// The queue transport retries these; they only fail an order once retries are exhausted.
type TransportError struct {
	Op        string // Operation that failed (e.g., "persist", "enqueue", "publish")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *TransportError) Error() string {
	return "TransportError: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) IsRetriable() bool {
	return e.Retriable
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new retriable transport error
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, Retriable: true}
}

// NewFatalTransportError creates a non-retriable transport error
func NewFatalTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, Retriable: false}
}

// ValidationError is a malformed ingress request. It never reaches the pipeline.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return "ValidationError: " + e.Field + ": " + e.Reason
}

// ExecutionError is a venue that accepted routing but failed to execute.
type ExecutionError struct {
	Venue  string
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	msg := "ExecutionFailed: " + e.Venue + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoQuoteAvailable is returned when every venue errored or timed out.
	ErrNoQuoteAvailable = errors.New("NoQuoteAvailable")

	// ErrExecutionFailed matches any ExecutionError.
	ErrExecutionFailed = errors.New("ExecutionFailed")

	// ErrDuplicateTransition marks a transition that is already satisfied. Callers ignore it.
	ErrDuplicateTransition = errors.New("DuplicateTransition")

	// ErrInvalidTransition is a transition that would skip or reverse a state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrOrderNotFound is returned when no order exists for an id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrQueueClosed is returned by a queue that no longer accepts or delivers jobs.
	ErrQueueClosed = errors.New("queue closed")
)
