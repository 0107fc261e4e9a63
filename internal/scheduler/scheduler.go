// Package scheduler runs pipeline tasks in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task names a background operation.
type Task string

const (
	TaskProcess      Task = "subtitle.process"
	TaskProcessRetry Task = "subtitle.process_retry"
)

var (
	ErrQueueFull   = errors.New("scheduler queue full")
	ErrUnknownTask = errors.New("no handler registered for task")
	ErrStopped     = errors.New("scheduler stopped")
)

// Handler executes one task for a job.
type Handler func(ctx context.Context, jobID string) error

// Scheduler enqueues fire-and-forget work for a job.
type Scheduler interface {
	Schedule(ctx context.Context, task Task, jobID string) error
}

type handlers struct {
	mu sync.RWMutex
	m  map[Task]Handler
}

func (h *handlers) set(task Task, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[Task]Handler)
	}
	h.m[task] = fn
}

func (h *handlers) get(task Task) (Handler, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.m[task]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	return fn, nil
}

// Inline runs tasks synchronously inside Schedule. Used by the CLI.
type Inline struct {
	handlers handlers
}

// NewInline creates an Inline scheduler.
func NewInline() *Inline {
	return &Inline{}
}

// Handle registers fn for task.
func (s *Inline) Handle(task Task, fn Handler) {
	s.handlers.set(task, fn)
}

// Schedule implements Scheduler by running the task before returning.
func (s *Inline) Schedule(ctx context.Context, task Task, jobID string) error {
	fn, err := s.handlers.get(task)
	if err != nil {
		return err
	}
	return fn(ctx, jobID)
}
