// Package queue hands slice evaluation tasks from the producer to the
// worker pool through a bounded in-memory buffer.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Task is one slice to evaluate. Seq is the position of the slice in the
// producer's input.
type Task struct {
	Seq   int
	Slice model.Slice
}

// Queue provides blocking enqueue with backpressure and channel-based
// dequeue.
type Queue interface {
	// Enqueue waits for room and adds t. It fails with ErrClosed once the
	// queue is closed, or with the context error.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue returns a channel receiving tasks; it is closed once the queue
	// is closed and drained.
	Dequeue(ctx context.Context) <-chan Task

	// Len returns the number of buffered tasks.
	Len(ctx context.Context) int

	// Close stops accepting tasks. Buffered tasks are still delivered.
	Close() error

	// Stop closes the queue and releases every blocked Enqueue and Dequeue
	// forwarder. Tasks not yet handed to a consumer are dropped.
	Stop() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	stop     chan struct{}
	stopOnce sync.Once
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		stop:     make(chan struct{}),
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue. The read lock is held while waiting so Close
// cannot close the channel under a pending send.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error { //nolint:gocritic // hugeParam: Task is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.tasks <- t:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.tasks))
		return nil
	case <-q.stop:
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	}
}

// Dequeue implements Queue. Every call starts a forwarder, so each consumer
// should call it once.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			var t Task
			select {
			case next, ok := <-q.tasks:
				if !ok {
					return
				}
				t = next
			case <-q.stop:
				return
			case <-ctx.Done():
				return
			}
			select {
			case out <- t:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.tasks))
			case <-q.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.tasks)
	metrics.UpdateQueueSize(size)
	return size
}

// Close implements Queue. Closing twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// Stop implements Queue.
func (q *InMemoryQueue) Stop() error {
	q.stopOnce.Do(func() { close(q.stop) })
	return q.Close()
}
