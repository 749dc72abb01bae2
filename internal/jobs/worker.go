package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/civicvoice/backend/internal/logging"
)

const (
	defaultPollTimeout = 2 * time.Second
	minDequeueBackoff  = 100 * time.Millisecond
	maxDequeueBackoff  = 30 * time.Second
)

// HandlerFunc runs one job. A returned error schedules a retry until the
// worker's attempt limit is reached.
type HandlerFunc func(ctx context.Context, job Job) error

type Worker struct {
	queue       Queue
	concurrency int
	maxAttempts int
	pollTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewWorker(queue Queue, concurrency, maxAttempts int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		queue:       queue,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		pollTimeout: defaultPollTimeout,
		handlers:    make(map[string]HandlerFunc),
	}
}

// SetPollTimeout changes how long each Dequeue call blocks.
func (w *Worker) SetPollTimeout(d time.Duration) {
	if d > 0 {
		w.pollTimeout = d
	}
}

func (w *Worker) Handle(typ string, h HandlerFunc) {
	w.mu.Lock()
	w.handlers[typ] = h
	w.mu.Unlock()
}

func (w *Worker) handler(typ string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[typ]
	return h, ok
}

// Run consumes jobs with the configured number of goroutines until ctx is
// cancelled. Malformed entries are dropped and queue errors are retried with
// exponential backoff, so Run only returns once ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	log := logging.Component("jobs")
	log.WithField("concurrency", w.concurrency).Info("worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.consume(gctx)
			return nil
		})
	}

	err := g.Wait()
	log.Info("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context) {
	log := logging.Component("jobs")
	backoff := minDequeueBackoff

	for {
		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		switch {
		case err == nil:
			backoff = minDequeueBackoff
			w.Process(ctx, job)
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrEmpty):
			backoff = minDequeueBackoff
			continue
		case errors.Is(err, ErrMalformed):
			log.WithError(err).Error("dropping malformed job")
			continue
		}

		log.WithError(err).WithField("backoff", backoff).Warn("dequeue failed")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxDequeueBackoff {
			backoff = maxDequeueBackoff
		}
	}
}

// Drain processes queued jobs on the calling goroutine until the queue is
// empty. Retries are processed in the same call.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx, 10*time.Millisecond)
		if errors.Is(err, ErrEmpty) {
			return nil
		}
		if errors.Is(err, ErrMalformed) {
			logging.Component("jobs").WithError(err).Error("dropping malformed job")
			continue
		}
		if err != nil {
			return err
		}
		w.Process(ctx, job)
	}
}

// Process runs a single job and re-enqueues it on failure while attempts
// remain. It reports whether the handler succeeded.
func (w *Worker) Process(ctx context.Context, job Job) bool {
	log := logging.Component("jobs").WithField("job_id", job.ID).WithField("type", job.Type)

	h, ok := w.handler(job.Type)
	if !ok {
		log.Warn("no handler registered, dropping job")
		return false
	}

	err := safeRun(ctx, h, job)
	if err == nil {
		log.WithField("attempt", job.Attempts+1).Debug("job done")
		return true
	}

	job.Attempts++
	if job.Attempts >= w.maxAttempts {
		log.WithError(err).WithField("attempts", job.Attempts).Error("job failed, giving up")
		return false
	}

	log.WithError(err).WithField("attempts", job.Attempts).Warn("job failed, retrying")
	if qerr := w.queue.Enqueue(ctx, job); qerr != nil {
		log.WithError(qerr).Error("re-enqueue failed")
	}
	return false
}

func safeRun(ctx context.Context, h HandlerFunc, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, job)
}
