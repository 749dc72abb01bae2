package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type greeting struct {
	Name string `json:"name"`
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		job, err := NewJob("greet", greeting{Name: name})
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(ctx, job))
	}
	assert.Equal(t, []string{"greet", "greet", "greet"}, q.PendingTypes())

	var got []string
	for i := 0; i < 3; i++ {
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		var g greeting
		require.NoError(t, job.Decode(&g))
		got = append(got, g.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err := q.Dequeue(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMemoryQueueDequeueCancelled(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisQueue(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	q, err := NewRedisQueue(ctx, srv.Addr(), "", "test:jobs")
	require.NoError(t, err)
	defer q.Close()

	first, _ := NewJob("greet", greeting{Name: "first"})
	second, _ := NewJob("greet", greeting{Name: "second"})
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, job.ID)

	job, err = q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.ID, job.ID)

	_, err = srv.Lpush("test:jobs", "{broken")
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, time.Second)
	assert.ErrorIs(t, err, ErrMalformed)
	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcherNilQueue(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.Dispatch(context.Background(), "greet", greeting{}))
}

func TestWorkerRetriesUntilLimit(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, 1, 3)

	var calls int32
	w.Handle("flaky", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})

	require.NoError(t, NewDispatcher(q).Dispatch(context.Background(), "flaky", greeting{}))
	require.NoError(t, w.Drain(context.Background()))

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Empty(t, q.Pending())
}

func TestWorkerSucceedsAfterRetry(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, 1, 3)

	var calls int32
	w.Handle("flaky", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("first attempt fails")
		}
		return nil
	})

	require.NoError(t, NewDispatcher(q).Dispatch(context.Background(), "flaky", greeting{}))
	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWorkerRecoversPanics(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, 1, 1)
	w.Handle("panics", func(ctx context.Context, job Job) error {
		panic("nope")
	})

	job, _ := NewJob("panics", nil)
	assert.False(t, w.Process(context.Background(), job))
}

func TestWorkerDropsUnknownTypes(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, 1, 3)

	job, _ := NewJob("unknown", nil)
	assert.False(t, w.Process(context.Background(), job))
	assert.Empty(t, q.Pending())
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemoryQueue()
	w := NewWorker(q, 3, 3)
	w.SetPollTimeout(20 * time.Millisecond)

	done := make(chan string, 1)
	w.Handle("greet", func(ctx context.Context, job Job) error {
		var g greeting
		if err := job.Decode(&g); err != nil {
			return err
		}
		done <- g.Name
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.NoError(t, NewDispatcher(q).Dispatch(ctx, "greet", greeting{Name: "hi"}))
	select {
	case name := <-done:
		assert.Equal(t, "hi", name)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerSkipsMalformedRedisEntry(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := miniredis.NewMiniRedis()
	require.NoError(t, srv.Start())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := NewRedisQueue(ctx, srv.Addr(), "", "test:jobs")
	require.NoError(t, err)
	defer q.Close()

	// BRPOP takes from the tail, so the malformed entry comes out first.
	_, err = srv.Lpush("test:jobs", "not json")
	require.NoError(t, err)
	job, _ := NewJob("greet", greeting{Name: "after"})
	require.NoError(t, q.Enqueue(ctx, job))

	done := make(chan string, 2)
	w := NewWorker(q, 1, 1)
	w.Handle("greet", func(ctx context.Context, job Job) error {
		var g greeting
		if err := job.Decode(&g); err != nil {
			return err
		}
		done <- g.Name
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case name := <-done:
		assert.Equal(t, "after", name)
	case err := <-errCh:
		t.Fatalf("worker stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("job after the malformed entry was not processed")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// flakyQueue fails the first failures Dequeue calls.
type flakyQueue struct {
	*MemoryQueue
	failures int32
	calls    int32
}

func (q *flakyQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	if atomic.AddInt32(&q.calls, 1) <= q.failures {
		return Job{}, errors.New("connection reset by peer")
	}
	return q.MemoryQueue.Dequeue(ctx, timeout)
}

func TestWorkerBacksOffOnQueueErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := &flakyQueue{MemoryQueue: NewMemoryQueue(), failures: 3}
	w := NewWorker(q, 2, 1)
	w.SetPollTimeout(20 * time.Millisecond)

	var handled int32
	w.Handle("greet", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.NoError(t, NewDispatcher(q).Dispatch(ctx, "greet", greeting{Name: "hi"}))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Greater(t, atomic.LoadInt32(&q.calls), q.failures)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
