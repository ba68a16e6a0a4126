package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/relay/pkg/emitter"
	"github.com/bft-labs/relay/pkg/log"
)

// Common lifecycle errors.
var (
	ErrUndeclaredState = errors.New("lifecycle: undeclared state")
	ErrDuplicateState  = errors.New("lifecycle: duplicate state")
	ErrNoStates        = errors.New("lifecycle: no states declared")
)

// Change describes a transition. Err carries the reason for transitions
// caused by a failure and is nil otherwise.
type Change[S comparable] struct {
	Previous S
	Current  S
	Err      error
}

// Listener is a handle to a registered state listener.
type Listener[S comparable] = emitter.Listener[Change[S]]

// Option configures a Machine.
type Option func(*options)

type options struct {
	logger log.Logger
	name   string
}

// WithLogger sets the logger used for transition and listener-panic logs.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithName labels log entries written by the machine.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Machine holds one value of a declared state set and notifies listeners on
// every transition. It is safe for concurrent use.
type Machine[S comparable] struct {
	mu       sync.RWMutex
	current  S
	states   []S
	declared map[S]struct{}

	events *emitter.Emitter[S, Change[S]]
	errs   *emitter.Emitter[struct{}, error]
	logger log.Logger
}

// New creates a Machine in initial over the declared states.
func New[S comparable](initial S, states []S, opts ...Option) (*Machine[S], error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger)
	if o.name != "" {
		logger = log.With(logger, log.String("machine", o.name))
	}

	declared := make(map[S]struct{}, len(states))
	for _, s := range states {
		if _, dup := declared[s]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateState, s)
		}
		declared[s] = struct{}{}
	}
	if _, ok := declared[initial]; !ok {
		return nil, fmt.Errorf("%w: initial %v", ErrUndeclaredState, initial)
	}

	return &Machine[S]{
		current:  initial,
		states:   append([]S(nil), states...),
		declared: declared,
		events:   emitter.New[S, Change[S]](emitter.WithLogger(logger)),
		errs:     emitter.New[struct{}, error](emitter.WithLogger(logger)),
		logger:   logger,
	}, nil
}

// State returns the current state.
func (m *Machine[S]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the current state equals s.
func (m *Machine[S]) Is(s S) bool {
	return m.State() == s
}

// States returns the declared states in declaration order.
func (m *Machine[S]) States() []S {
	return append([]S(nil), m.states...)
}

// Declared reports whether s belongs to the declared state set.
func (m *Machine[S]) Declared(s S) bool {
	_, ok := m.declared[s]
	return ok
}

// ChangeState moves the machine to s and emits an event keyed by s.
// Changing to the current state emits nothing. An undeclared s is rejected
// with ErrUndeclaredState and leaves the state untouched.
func (m *Machine[S]) ChangeState(s S, reason error) error {
	if !m.Declared(s) {
		return fmt.Errorf("%w: %v", ErrUndeclaredState, s)
	}

	m.mu.Lock()
	prev := m.current
	if prev == s {
		m.mu.Unlock()
		return nil
	}
	m.current = s
	m.mu.Unlock()

	fields := []log.Field{
		log.String("from", fmt.Sprint(prev)),
		log.String("to", fmt.Sprint(s)),
	}
	if reason != nil {
		fields = append(fields, log.Err(reason))
	}
	m.logger.Debug("state transition", fields...)

	// Emit outside of lock
	m.events.Emit(s, Change[S]{Previous: prev, Current: s, Err: reason})
	return nil
}

// On registers a persistent listener for transitions into s.
func (m *Machine[S]) On(s S, fn func(Change[S])) (*Listener[S], error) {
	if !m.Declared(s) {
		return nil, fmt.Errorf("%w: %v", ErrUndeclaredState, s)
	}
	return m.events.On(s, fn), nil
}

// Once registers a listener for the next transition into s.
func (m *Machine[S]) Once(s S, fn func(Change[S])) (*Listener[S], error) {
	if !m.Declared(s) {
		return nil, fmt.Errorf("%w: %v", ErrUndeclaredState, s)
	}
	return m.events.Once(s, fn), nil
}

// Off removes listeners of s; every listener of s when none are given.
func (m *Machine[S]) Off(s S, listeners ...*Listener[S]) {
	m.events.Off(s, listeners...)
}

// OffAll removes every state and error listener.
func (m *Machine[S]) OffAll() {
	m.events.OffAll()
	m.errs.OffAll()
}

// OnError registers a listener for errors surfaced independently of state.
func (m *Machine[S]) OnError(fn func(error)) *emitter.Listener[error] {
	return m.errs.On(struct{}{}, fn)
}

// OffError removes error listeners; all of them when none are given.
func (m *Machine[S]) OffError(listeners ...*emitter.Listener[error]) {
	m.errs.Off(struct{}{}, listeners...)
}

// EmitError notifies error listeners. A nil err is ignored.
func (m *Machine[S]) EmitError(err error) {
	if err == nil {
		return
	}
	m.errs.Emit(struct{}{}, err)
}

// OnceOrIf runs fn immediately when the machine is already in target, and
// otherwise once on the next transition into target.
func (m *Machine[S]) OnceOrIf(target S, fn func(Change[S])) error {
	if !m.Declared(target) {
		return fmt.Errorf("%w: %v", ErrUndeclaredState, target)
	}

	// Hold the lock so a concurrent ChangeState cannot slip between the
	// check and the registration.
	m.mu.Lock()
	if m.current == target {
		m.mu.Unlock()
		fn(Change[S]{Previous: target, Current: target})
		return nil
	}
	m.events.Once(target, fn)
	m.mu.Unlock()
	return nil
}

// OnceStateChanged runs fn once, on the next transition into any declared
// state. All of its registrations are removed when it fires.
func (m *Machine[S]) OnceStateChanged(fn func(Change[S])) {
	g := &onceGroup[S]{}

	m.mu.Lock()
	defer m.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range m.states {
		state := s
		l := m.events.On(state, func(c Change[S]) {
			if !g.claim() {
				return
			}
			for i, other := range g.states {
				m.events.Off(other, g.listeners[i])
			}
			fn(c)
		})
		g.states = append(g.states, state)
		g.listeners = append(g.listeners, l)
	}
}

// OnAnyChange registers fn for every transition and returns a function that
// removes it.
func (m *Machine[S]) OnAnyChange(fn func(Change[S])) (cancel func()) {
	m.mu.RLock()
	states := m.states
	m.mu.RUnlock()

	listeners := make([]*Listener[S], len(states))
	for i, s := range states {
		listeners[i] = m.events.On(s, fn)
	}
	return func() {
		for i, s := range states {
			m.events.Off(s, listeners[i])
		}
	}
}

type onceGroup[S comparable] struct {
	mu        sync.Mutex
	fired     bool
	states    []S
	listeners []*Listener[S]
}

// claim marks the group fired. It blocks until registration has finished.
func (g *onceGroup[S]) claim() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fired {
		return false
	}
	g.fired = true
	return true
}
