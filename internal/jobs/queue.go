package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicvoice/backend/internal/logging"
)

var (
	// ErrEmpty is returned by Dequeue when no job arrived before the timeout.
	ErrEmpty = errors.New("jobs: queue empty")
	// ErrMalformed is returned by Dequeue for an entry that could not be
	// decoded. The entry has already been removed from the queue.
	ErrMalformed = errors.New("jobs: malformed job")
)

// Job is one unit of deferred work. Payload is the JSON encoding of the
// task-specific arguments.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func NewJob(typ string, payload interface{}) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:         uuid.NewString(),
		Type:       typ,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available, the timeout passes (ErrEmpty)
	// or ctx is done.
	Dequeue(ctx context.Context, timeout time.Duration) (Job, error)
}

// Dispatcher builds jobs and hands them to a queue. Enqueue failures are
// logged and returned; callers on the request path usually ignore them.
type Dispatcher struct {
	queue Queue
}

func NewDispatcher(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

func (d *Dispatcher) Dispatch(ctx context.Context, typ string, payload interface{}) error {
	if d == nil || d.queue == nil {
		return nil
	}
	job, err := NewJob(typ, payload)
	if err != nil {
		logging.Component("jobs").WithError(err).WithField("type", typ).Error("encode job")
		return err
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		logging.Component("jobs").WithError(err).WithField("type", typ).Error("enqueue job")
		return err
	}
	return nil
}

// MemoryQueue is a FIFO queue held in process memory. Used when Redis is not
// configured and in tests.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []Job
	notify chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-timer.C:
			return Job{}, ErrEmpty
		case <-q.notify:
		}
	}
}

// Pending returns a snapshot of queued jobs.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// PendingTypes returns the types of queued jobs in order.
func (q *MemoryQueue) PendingTypes() []string {
	pending := q.Pending()
	out := make([]string, 0, len(pending))
	for _, j := range pending {
		out = append(out, j.Type)
	}
	return out
}

// Reset drops all queued jobs.
func (q *MemoryQueue) Reset() {
	q.mu.Lock()
	q.jobs = nil
	q.mu.Unlock()
}
