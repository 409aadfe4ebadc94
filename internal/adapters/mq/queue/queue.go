// Package queue holds ledger commands between the request goroutines that
// submit them and the worker pool that applies them.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/paddle/internal/domain/model"
	"github.com/okian/paddle/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a command. It never blocks: a full queue returns ErrFull
	// and a closed one ErrClosed.
	Enqueue(ctx context.Context, c model.Command) error

	// Dequeue returns the channel receiving commands in FIFO order. It is
	// closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Command

	// Len returns the current number of queued commands.
	Len() int

	// Cap returns the queue capacity.
	Cap() int

	// Close stops accepting commands. Queued commands are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.Command
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.Command, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, c model.Command) error { //nolint:gocritic // hugeParam: commands travel by value
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	c.EnqueuedAt = time.Now()
	select {
	case q.events <- c:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.events))
		return nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the shared command channel. Consumers record the wait
// time from Command.EnqueuedAt.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan model.Command {
	return q.events
}

func (q *InMemoryQueue) Len() int { return len(q.events) }

func (q *InMemoryQueue) Cap() int { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
