package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stays-service/utils"

	"github.com/google/uuid"
)

// RefreshGuard marks refresh keys as in flight. Acquire returns false when
// another holder already owns key.
type RefreshGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryGuard is a process-local RefreshGuard.
type MemoryGuard struct {
	keys *utils.KeyTracker
}

// NewMemoryGuard creates an empty guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: utils.NewKeyTracker()}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	return g.keys.Add(key), nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.keys.Remove(key)
	return nil
}

// TaskRunner runs detached tasks with their own deadline. Every failure,
// panics included, is logged; nothing is returned to the caller of Go.
type TaskRunner struct {
	logger  *utils.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	// OnDone, when set, observes each finished task. Used by tests.
	OnDone func(id, name string, err error)
}

// NewTaskRunner creates a runner whose tasks are cancelled after timeout
func NewTaskRunner(timeout time.Duration, logger *utils.Logger) *TaskRunner {
	return &TaskRunner{logger: logger, timeout: timeout}
}

// Go starts fn in a goroutine and returns the task id.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) string {
	id := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		start := time.Now()
		err := r.run(ctx, fn)
		if err != nil {
			r.logger.Error("Task %s (%s) failed after %v: %v", name, id, time.Since(start).Round(time.Millisecond), err)
		} else {
			r.logger.Info("Task %s (%s) finished in %v", name, id, time.Since(start).Round(time.Millisecond))
		}
		if r.OnDone != nil {
			r.OnDone(id, name, err)
		}
	}()
	return id
}

func (r *TaskRunner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task returns or ctx is done.
func (r *TaskRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
