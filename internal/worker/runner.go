package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/infrastructure/logger"
)

// Runner executes detached background tasks with panic isolation. Tasks
// get their own context, derived from the runner's base context rather
// than the spawning request, so a disconnecting caller never cancels an
// in-flight task.
type Runner struct {
	taskTimeout time.Duration
	log         zerolog.Logger
	wg          sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner creates a background task runner.
func NewRunner(taskTimeout time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		taskTimeout: taskTimeout,
		log:         logger.Component(log, "task-runner"),
	}
}

// Submit schedules fn on its own goroutine. A panic inside fn is
// recovered and logged; it never reaches the caller.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn().Str("task", name).Msg("runner draining, task dropped")
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Str("task", name).Interface("panic", rec).Msg("background task panicked")
			}
		}()

		ctx := context.Background()
		if r.taskTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.taskTimeout)
			defer cancel()
		}

		fn(ctx)
	}()
}

// Drain stops accepting tasks and waits for in-flight ones to finish.
func (r *Runner) Drain() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Msg("all background tasks finished")
	case <-time.After(30 * time.Second):
		r.log.Warn().Msg("background task drain timed out")
	}
}
