package emitter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/relay/pkg/log"
)

// Handler is invoked with the emitted value.
type Handler[V any] func(V)

// PanicHandler is called when a listener panics during Emit.
type PanicHandler func(event any, recovered any)

// Listener is a registered handler. It is returned by On and Once and is the
// token used to remove the handler again.
type Listener[V any] struct {
	fn      Handler[V]
	once    bool
	fired   atomic.Bool
	removed atomic.Bool
}

// Active reports whether the listener is still registered.
func (l *Listener[V]) Active() bool {
	return !l.removed.Load()
}

// Option configures an Emitter.
type Option func(*options)

type options struct {
	logger       log.Logger
	panicHandler PanicHandler
}

// WithLogger sets the logger that receives recovered listener panics.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPanicHandler sets a hook called for every recovered listener panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(o *options) {
		o.panicHandler = h
	}
}

// Emitter dispatches values to listeners keyed by event.
// It is safe for concurrent use.
type Emitter[K comparable, V any] struct {
	mu        sync.RWMutex
	listeners map[K][]*Listener[V]
	logger    log.Logger
	onPanic   PanicHandler
}

// New creates an empty Emitter.
func New[K comparable, V any](opts ...Option) *Emitter[K, V] {
	o := options{logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Emitter[K, V]{
		listeners: make(map[K][]*Listener[V]),
		logger:    log.OrNoop(o.logger),
		onPanic:   o.panicHandler,
	}
}

// On registers a persistent listener for event.
func (e *Emitter[K, V]) On(event K, fn Handler[V]) *Listener[V] {
	return e.add(event, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (e *Emitter[K, V]) Once(event K, fn Handler[V]) *Listener[V] {
	return e.add(event, fn, true)
}

func (e *Emitter[K, V]) add(event K, fn Handler[V], once bool) *Listener[V] {
	l := &Listener[V]{fn: fn, once: once}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners[event] = append(e.listeners[event], l)
	return l
}

// Off removes the given listeners from event. With no listeners given, every
// listener of event is removed. Unknown listeners are ignored.
func (e *Emitter[K, V]) Off(event K, listeners ...*Listener[V]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.listeners[event]
	if !ok {
		return
	}

	if len(listeners) == 0 {
		for _, l := range current {
			l.removed.Store(true)
		}
		delete(e.listeners, event)
		return
	}

	kept := current[:0:0]
	for _, l := range current {
		if contains(listeners, l) {
			l.removed.Store(true)
			continue
		}
		kept = append(kept, l)
	}
	e.store(event, kept)
}

// OffAll removes every listener of every event.
func (e *Emitter[K, V]) OffAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ls := range e.listeners {
		for _, l := range ls {
			l.removed.Store(true)
		}
	}
	e.listeners = make(map[K][]*Listener[V])
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter[K, V]) ListenerCount(event K) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}

// Emit calls every listener registered for event at the time of the call,
// in registration order.
func (e *Emitter[K, V]) Emit(event K, v V) {
	e.mu.RLock()
	current := e.listeners[event]
	if len(current) == 0 {
		e.mu.RUnlock()
		return
	}
	snapshot := make([]*Listener[V], len(current))
	copy(snapshot, current)
	e.mu.RUnlock()

	for _, l := range snapshot {
		if l.removed.Load() {
			continue
		}
		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			e.Off(event, l)
		}
		e.call(event, l, v)
	}
}

func (e *Emitter[K, V]) call(event K, l *Listener[V], v V) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("listener panicked",
				log.String("event", fmt.Sprint(event)),
				log.Any("panic", r),
			)
			if e.onPanic != nil {
				e.onPanic(event, r)
			}
		}
	}()
	l.fn(v)
}

func (e *Emitter[K, V]) store(event K, ls []*Listener[V]) {
	if len(ls) == 0 {
		delete(e.listeners, event)
		return
	}
	e.listeners[event] = ls
}

func contains[V any](ls []*Listener[V], l *Listener[V]) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}
