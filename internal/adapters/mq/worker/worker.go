// Package worker drains the command queue and applies each command to the
// ledger. A single worker gives single-writer semantics; more workers rely on
// the store's revision check to serialize saves.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/paddle/internal/domain/model"
	"github.com/okian/paddle/pkg/logger"
	"github.com/okian/paddle/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Applier performs one command against the ledger and reports the outcome.
type Applier interface {
	Apply(ctx context.Context, c model.Command) model.Reply
}

// Queue defines how workers receive commands.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Command
}

// Worker processes commands using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker without waiting for the queue to drain.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	commands := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			w.process(ctx, cmd)
		}
	}
}

// Shutdown signals the worker to stop and waits for the current command.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process applies one command and answers its caller. A panicking applier is
// turned into an error reply so the worker keeps draining the queue.
func (w *InMemoryWorker) process(ctx context.Context, cmd model.Command) { //nolint:gocritic // hugeParam: commands travel by value
	start := time.Now()
	kind := string(cmd.Kind)
	if !cmd.EnqueuedAt.IsZero() {
		metrics.RecordQueueDequeue(start.Sub(cmd.EnqueuedAt))
	}

	var reply model.Reply
	func() {
		defer func() {
			if r := recover(); r != nil {
				reply = model.Reply{Err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		reply = w.applier.Apply(ctx, cmd)
	}()
	metrics.RecordCommand(kind, time.Since(start))

	if reply.Err != nil {
		metrics.RecordCommandError(kind, errorType(reply.Err))
		w.logger.Debug(ctx, "command rejected",
			logger.String("command", cmd.ID),
			logger.String("kind", kind),
			logger.Error(reply.Err),
		)
	} else {
		w.logger.Debug(ctx, "command applied",
			logger.String("command", cmd.ID),
			logger.String("kind", kind),
			logger.Int("attempts", reply.Attempts),
			logger.Bool("duplicate", reply.Duplicate),
		)
	}
	cmd.Respond(reply)
}

// errorType gives a low-cardinality label for an error.
func errorType(err error) string {
	if errors.Is(err, ErrPanic) {
		return "panic"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "context"
	}
	return "error"
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. Fewer than one means the
// default of a single writer.
func NewPool(workerCount int, queue Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		p.workers[i] = NewInMemoryWorker(queue, applier,
			append(opts, WithName("worker-"+strconv.Itoa(i)))...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue and lets the workers drain it. Workers still busy
// when ctx (capped at 30s) ends are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(shutdownCtx)
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	p.logger.Info(ctx, "worker pool stopped")
	return nil
}
