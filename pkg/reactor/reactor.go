package reactor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/relay/pkg/log"
)

// ErrClosed is returned when a task is posted to a closed reactor.
var ErrClosed = errors.New("reactor: closed")

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger that receives recovered task panics.
func WithLogger(l log.Logger) Option {
	return func(r *Reactor) {
		r.logger = log.OrNoop(l)
	}
}

// Reactor executes tasks sequentially in FIFO order.
type Reactor struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	logger log.Logger
}

// New creates a reactor and starts its loop goroutine.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

// Post schedules fn to run after every previously posted task. It never
// blocks and returns ErrClosed once the reactor is closed.
func (r *Reactor) Post(fn func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.tasks = append(r.tasks, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

// AfterFunc posts fn once d has elapsed. Stopping the returned timer before
// it fires cancels the post.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		_ = r.Post(fn)
	})
}

// Sync blocks until every task posted before the call has run.
// It must not be called from inside a task.
func (r *Reactor) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if err := r.Post(func() { close(reached) }); err != nil {
		return err
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, runs the ones already posted and waits for
// the loop to exit or ctx to expire. Closing twice is a no-op.
func (r *Reactor) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (r *Reactor) Done() <-chan struct{} {
	return r.done
}

func (r *Reactor) loop() {
	defer close(r.done)

	for range r.wake {
		for {
			r.mu.Lock()
			if len(r.tasks) == 0 {
				closed := r.closed
				r.mu.Unlock()
				if closed {
					return
				}
				break
			}
			task := r.tasks[0]
			r.tasks[0] = nil
			r.tasks = r.tasks[1:]
			r.mu.Unlock()

			r.run(task)
		}
	}
}

func (r *Reactor) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reactor task panicked", log.Any("panic", rec))
		}
	}()
	task()
}
