// Package queue is a bounded in-process worker pool for classification jobs.
// Enqueue is fire-and-forget: callers get an acknowledgement, never a result.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/logger"
)

// Handler runs one job. It must not return an error; failures are handled and
// logged inside the job body.
type Handler func(ctx context.Context, ticketID string)

type Queue struct {
	jobs    chan string
	handler Handler
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(size int, handler Handler, log *logger.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan string, size),
		handler: handler,
		log:     log.With("component", "queue"),
	}
}

// Start launches n workers that drain the queue until Shutdown.
func (q *Queue) Start(n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info("classification workers started", "workers", n, "capacity", cap(q.jobs))
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for id := range q.jobs {
		q.run(id)
	}
}

// run isolates a single job: a panicking handler is recovered so the worker
// keeps serving the rest of the queue.
func (q *Queue) run(id string) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panicked", "ticket_id", id, "panic", fmt.Sprint(r))
		}
	}()
	q.handler(context.Background(), id)
}

// Enqueue schedules a classification job for the ticket id. Returns false if
// the queue is full or shutting down; the job is dropped, not blocked on.
func (q *Queue) Enqueue(ticketID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- ticketID:
		return true
	default:
		q.log.Warn("queue full, dropping job", "ticket_id", ticketID)
		return false
	}
}

// Shutdown stops accepting work and waits for in-flight and queued jobs to
// finish, up to the context deadline.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown: %w", ctx.Err())
	}
}

// Drain waits (unbounded) for everything queued so far to finish and then
// shuts the pool down. Used by the bulk-classify CLI.
func (q *Queue) Drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()
	_ = q.Shutdown(ctx)
}
