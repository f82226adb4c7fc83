// Package poll runs a function on a fixed interval until stopped.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Func is one poll. The context is cancelled when the task stops.
type Func func(ctx context.Context) error

// Option configures a Task.
type Option func(*Task)

// WithErrorHandler receives every error fn returns. Errors never stop the task.
func WithErrorHandler(h func(error)) Option {
	return func(t *Task) { t.onError = h }
}

// Immediately runs fn once at start instead of waiting a full interval.
func Immediately() Option {
	return func(t *Task) { t.immediate = true }
}

// Task is a cancellable periodic job.
type Task struct {
	interval  time.Duration
	fn        Func
	onError   func(error)
	immediate bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every starts running fn every interval on its own goroutine.
func Every(clock clockwork.Clock, interval time.Duration, fn Func, opts ...Option) *Task {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	ticker := clock.NewTicker(interval)
	go t.loop(ctx, ticker)
	return t
}

func (t *Task) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	if t.immediate {
		t.run(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.run(ctx)
		}
	}
}

func (t *Task) run(ctx context.Context) {
	if err := t.fn(ctx); err != nil && t.onError != nil && ctx.Err() == nil {
		t.onError(err)
	}
}

// Stop cancels the task and waits for an in-flight poll to return.
// It is safe to call more than once.
func (t *Task) Stop() {
	t.once.Do(t.cancel)
	<-t.done
}

// Done is closed once the task has stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
