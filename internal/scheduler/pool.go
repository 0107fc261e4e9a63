package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/timmy/subtitles/internal/logger"
)

type queued struct {
	task  Task
	jobID string
}

// DropHandler is told about an accepted task that will never run.
type DropHandler func(ctx context.Context, task Task, jobID string)

// Pool is a small bounded worker pool. Schedule never blocks: when the queue
// is full it returns ErrQueueFull.
type Pool struct {
	handlers handlers
	queue    chan queued
	quit     chan struct{}
	wg       sync.WaitGroup
	n        int
	logger   *logger.Logger
	onDrop   DropHandler

	mu      sync.Mutex
	stopped bool
}

// NewPool creates a pool with the given number of workers and queue capacity.
func NewPool(workers, queueSize int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Pool{
		queue:  make(chan queued, queueSize),
		quit:   make(chan struct{}),
		n:      workers,
		logger: log,
	}
}

// Handle registers fn for task. Register handlers before Start.
func (p *Pool) Handle(task Task, fn Handler) {
	p.handlers.set(task, fn)
}

// OnDrop registers fn for tasks still queued when the pool stops. Register it before Start.
func (p *Pool) OnDrop(fn DropHandler) {
	p.onDrop = fn
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				// Prefer quitting over taking more work; Stop drains the queue.
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				default:
				}
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case q := <-p.queue:
					p.run(ctx, id, q)
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for running tasks to finish. Tasks
// still queued are handed to the OnDrop handler instead of running.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	p.mu.Unlock()
	p.wg.Wait()
	p.drain()
}

// drain empties the queue. Schedule rejects new work once stopped is set.
func (p *Pool) drain() {
	ctx := logger.SetComponent(p.logger.WithContext(context.Background()), "scheduler")
	for {
		select {
		case q := <-p.queue:
			dctx := logger.WithFields(ctx, logger.Fields{
				logger.FieldJobID: q.jobID,
				"task":            string(q.task),
			})
			logger.CtxWarn(dctx, "Dropping queued task on shutdown")
			if p.onDrop != nil {
				p.dropSafely(dctx, q)
			}
		default:
			return
		}
	}
}

func (p *Pool) dropSafely(ctx context.Context, q queued) {
	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Drop handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	p.onDrop(ctx, q.task, q.jobID)
}

// Schedule implements Scheduler.
func (p *Pool) Schedule(_ context.Context, task Task, jobID string) error {
	if _, err := p.handlers.get(task); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- queued{task: task, jobID: jobID}:
		return nil
	default:
		return fmt.Errorf("%w: %s for job %s", ErrQueueFull, task, jobID)
	}
}

func (p *Pool) run(ctx context.Context, worker int, q queued) {
	ctx = p.logger.WithContext(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:     q.jobID,
		logger.FieldComponent: "scheduler",
		"task":                string(q.task),
		"worker":              worker,
	})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Task panicked: %v\n%s", r, debug.Stack())
		}
	}()

	fn, err := p.handlers.get(q.task)
	if err != nil {
		logger.CtxError(ctx, "Dropping task: %v", err)
		return
	}

	if err := fn(ctx, q.jobID); err != nil {
		logger.With(logger.Fields{logger.FieldStatus: "error"}).WithDuration(start).
			Error(ctx, "Task failed: %v", err)
		return
	}
	logger.With(logger.Fields{logger.FieldStatus: "ok"}).WithDuration(start).Info(ctx, "Task finished")
}
