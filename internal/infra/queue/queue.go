package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"order_engine/internal/domain"
	"order_engine/internal/infra"

	"github.com/google/uuid"
)

const (
	defaultMaxAttempts = 3
	defaultBuffer      = 1024
)

// Options configures a Queue.
type Options struct {
	Name        string
	MaxAttempts int
	// Buffer sizes the hand-off channel to workers. Jobs beyond it wait in an
	// unbounded backlog, so producers and Recover never block on a full queue.
	Buffer int
	// Backoff maps a retry count (0 for the first retry) to a delay. Defaults to infra.CalculateBackoff.
	Backoff func(retryCount int) time.Duration
	// Journal is optional; without it jobs do not survive a restart.
	Journal *Journal
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Waiting   int    `json:"waiting"`
	Delayed   int64  `json:"delayed"`
	Active    int64  `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
}

// Queue is an in-process at-least-once job queue.
// A nacked job with a retriable error is redelivered after a backoff until
// MaxAttempts is reached; any other failure is final.
type Queue struct {
	name        string
	maxAttempts int
	backoff     func(int) time.Duration
	journal     *Journal

	ready   chan domain.Job
	mu      sync.Mutex
	backlog []domain.Job  // overflow once ready is full; drained before new jobs use ready again
	wake    chan struct{} // signals a backlog push to a waiting Dequeue
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup // pending retry timers

	delayed   atomic.Int64
	active    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
}

var (
	_ domain.JobQueue  = (*Queue)(nil)
	_ domain.JobSource = (*Queue)(nil)
)

// New creates a queue.
func New(opts Options) *Queue {
	if opts.Name == "" {
		opts.Name = domain.QueueOrderExecution
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Backoff == nil {
		opts.Backoff = infra.CalculateBackoff
	}
	return &Queue{
		name:        opts.Name,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		journal:     opts.Journal,
		ready:       make(chan domain.Job, opts.Buffer),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue adds a new job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, name string, payload domain.JobPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	job := domain.Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     payload,
		Attempt:     1,
		MaxAttempts: q.maxAttempts,
		EnqueuedAt:  time.Now(),
	}

	if q.journal != nil {
		if err := q.journal.Save(job); err != nil {
			return "", domain.NewTransportError("enqueue", err)
		}
	}

	if err := q.push(job); err != nil {
		return "", err
	}

	slog.Info("Job enqueued",
		slog.String("queue", q.name),
		slog.String("job_id", job.ID),
		slog.String("order_id", payload.OrderID),
	)
	return job.ID, nil
}

// Recover re-enqueues every journaled job and returns how many it queued.
// It does not wait for consumers, so it is safe to call before workers start.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	if q.journal == nil {
		return 0, nil
	}
	jobs, err := q.journal.Load()
	if err != nil {
		return 0, domain.NewFatalTransportError("recover", err)
	}

	n := 0
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := q.push(job); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		slog.Info("Recovered journaled jobs", slog.String("queue", q.name), slog.Int("count", n))
	}
	return n, nil
}

// push never blocks: when ready is full (or older jobs are still in the
// backlog) the job joins the backlog.
func (q *Queue) push(job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return domain.ErrQueueClosed
	default:
	}

	if len(q.backlog) == 0 {
		select {
		case q.ready <- job:
			return nil
		default:
		}
	}
	q.backlog = append(q.backlog, job)
	q.signal()
	return nil
}

func (q *Queue) pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) == 0 {
		return domain.Job{}, false
	}
	job := q.backlog[0]
	q.backlog[0] = domain.Job{}
	q.backlog = q.backlog[1:]
	if len(q.backlog) > 0 {
		q.signal()
	}
	return job, true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a job is available, the queue closes, or ctx is done.
// Jobs already in ready are older than any backlog entry and go first.
func (q *Queue) Dequeue(ctx context.Context) (domain.Delivery, error) {
	for {
		select {
		case <-q.done:
			return nil, domain.ErrQueueClosed
		default:
		}

		select {
		case job := <-q.ready:
			return q.deliver(job), nil
		default:
		}
		if job, ok := q.pop(); ok {
			return q.deliver(job), nil
		}

		select {
		case job := <-q.ready:
			return q.deliver(job), nil
		case <-q.wake:
		case <-q.done:
			return nil, domain.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) deliver(job domain.Job) *delivery {
	q.active.Add(1)
	return &delivery{q: q, job: job}
}

// Close stops accepting and delivering jobs. Journaled jobs stay for the next Recover.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	waiting := len(q.ready) + len(q.backlog)
	q.mu.Unlock()

	return Stats{
		Waiting:   waiting,
		Delayed:   q.delayed.Load(),
		Active:    q.active.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
	}
}

func (q *Queue) complete(job domain.Job) {
	q.active.Add(-1)
	q.completed.Add(1)
	q.forget(job)
	slog.Info("Job completed", slog.String("queue", q.name), slog.String("job_id", job.ID))
}

func (q *Queue) fail(job domain.Job, cause error) {
	q.active.Add(-1)

	if domain.IsRetriable(cause) && job.Attempt < job.MaxAttempts {
		delay := q.backoff(job.Attempt - 1)
		job.Attempt++
		q.retried.Add(1)

		if q.journal != nil {
			if err := q.journal.Save(job); err != nil {
				slog.Error("Failed to journal retry", slog.String("job_id", job.ID), slog.Any("error", err))
			}
		}

		slog.Warn("Job failed, retrying",
			slog.String("queue", q.name),
			slog.String("job_id", job.ID),
			slog.Int("next_attempt", job.Attempt),
			slog.Duration("delay", delay),
			slog.Any("error", cause),
		)
		q.schedule(job, delay)
		return
	}

	q.failed.Add(1)
	q.forget(job)
	slog.Error("Job failed",
		slog.String("queue", q.name),
		slog.String("job_id", job.ID),
		slog.String("order_id", job.Payload.OrderID),
		slog.Int("attempt", job.Attempt),
		slog.Any("error", cause),
	)
}

func (q *Queue) schedule(job domain.Job, delay time.Duration) {
	q.delayed.Add(1)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.delayed.Add(-1)

		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-q.done:
			return
		}
		if err := q.push(job); err != nil {
			slog.Warn("Retry dropped, job stays journaled", slog.String("job_id", job.ID), slog.Any("error", err))
		}
	}()
}

func (q *Queue) forget(job domain.Job) {
	if q.journal == nil {
		return
	}
	if err := q.journal.Delete(job.ID); err != nil {
		slog.Error("Failed to remove job from journal", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// delivery hands one job to a worker slot. Ack and Nack take effect once.
type delivery struct {
	q        *Queue
	job      domain.Job
	once     sync.Once
	progress atomic.Int32
}

func (d *delivery) Job() domain.Job {
	return d.job
}

func (d *delivery) ReportProgress(pct int) {
	d.progress.Store(int32(pct))
	slog.Debug("Job progress",
		slog.String("job_id", d.job.ID),
		slog.String("order_id", d.job.Payload.OrderID),
		slog.Int("progress", pct),
	)
}

// Progress returns the last reported percentage.
func (d *delivery) Progress() int {
	return int(d.progress.Load())
}

func (d *delivery) Ack() {
	d.once.Do(func() { d.q.complete(d.job) })
}

func (d *delivery) Nack(err error) {
	d.once.Do(func() { d.q.fail(d.job, err) })
}
