package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/relay/pkg/batch"
	"github.com/bft-labs/relay/pkg/emitter"
	"github.com/bft-labs/relay/pkg/lifecycle"
	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/protocol"
	"github.com/bft-labs/relay/pkg/reactor"
	"github.com/bft-labs/relay/pkg/transport"
)

// State is the attachment state of a channel.
type State string

const (
	StateInitialized State = "initialized"
	StateAttaching   State = "attaching"
	StateAttached    State = "attached"
	StateDetaching   State = "detaching"
	StateDetached    State = "detached"
	StateSuspended   State = "suspended"
	StateFailed      State = "failed"
)

// States lists every channel state in declaration order.
var States = []State{
	StateInitialized,
	StateAttaching,
	StateAttached,
	StateDetaching,
	StateDetached,
	StateSuspended,
	StateFailed,
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Change describes a channel state transition.
type Change = lifecycle.Change[State]

// StateListener is a handle to a registered state listener.
type StateListener = lifecycle.Listener[State]

// Transport is the part of transport.Transport a channel needs.
type Transport interface {
	Attach(ctx context.Context, channel string) error
	Detach(ctx context.Context, channel string) error
	Send(ctx context.Context, env *protocol.Envelope) (*protocol.Ack, error)
}

// Default timing values.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetryInitial   = 1 * time.Second
	DefaultRetryMax       = 30 * time.Second
)

// Option configures a Channel.
type Option func(*options)

type options struct {
	logger         log.Logger
	requestTimeout time.Duration
	retryInitial   time.Duration
	retryMax       time.Duration
	newID          func() string
}

// WithLogger sets the channel's logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRequestTimeout bounds every transport call made by the channel.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithRetryBackoff sets the delays between automatic re-attach attempts
// after retryable attach failures.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		o.retryInitial = initial
		o.retryMax = max
	}
}

// WithIDGenerator overrides how envelope ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Channel is the client-side state of one named pub/sub channel.
type Channel struct {
	name      string
	transport Transport
	logger    log.Logger
	timeout   time.Duration
	newID     func() string

	// loop runs every mutation and callback; io runs transport calls in order.
	loop *reactor.Reactor
	io   *reactor.Reactor

	machine  *lifecycle.Machine[State]
	registry *Registry

	// Fields below are confined to loop.
	queue         *batch.Queue
	attempt       uint64
	cancelAttempt context.CancelFunc
	attachWaiters []func(error)
	detachWaiters []func(error)
	detachFrom    State
	backoff       *lifecycle.Backoff
	retry         *time.Timer

	reasonMu sync.Mutex
	reason   error
}

// New creates a channel named name in the initialized state.
func New(name string, t Transport, opts ...Option) *Channel {
	o := options{
		requestTimeout: DefaultRequestTimeout,
		retryInitial:   DefaultRetryInitial,
		retryMax:       DefaultRetryMax,
		newID:          protocol.NewEnvelopeID,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.With(log.OrNoop(o.logger), log.String("channel", name))

	machine, err := lifecycle.New(StateInitialized, States,
		lifecycle.WithLogger(logger),
	)
	if err != nil {
		// States is a package constant; this cannot fail.
		panic(err)
	}

	return &Channel{
		name:      name,
		transport: t,
		logger:    logger,
		timeout:   o.requestTimeout,
		newID:     o.newID,
		loop:      reactor.New(reactor.WithLogger(logger)),
		io:        reactor.New(reactor.WithLogger(logger)),
		machine:   machine,
		registry:  NewRegistry(logger),
		queue:     batch.NewQueue(),
		backoff:   lifecycle.NewBackoff(o.retryInitial, o.retryMax),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// State returns the current state.
func (c *Channel) State() State {
	return c.machine.State()
}

// Is reports whether the channel is in state s.
func (c *Channel) Is(s State) bool {
	return c.machine.Is(s)
}

func (c *Channel) IsInitialized() bool { return c.Is(StateInitialized) }
func (c *Channel) IsAttaching() bool   { return c.Is(StateAttaching) }
func (c *Channel) IsAttached() bool    { return c.Is(StateAttached) }
func (c *Channel) IsDetaching() bool   { return c.Is(StateDetaching) }
func (c *Channel) IsDetached() bool    { return c.Is(StateDetached) }
func (c *Channel) IsSuspended() bool   { return c.Is(StateSuspended) }
func (c *Channel) IsFailed() bool      { return c.Is(StateFailed) }

// On registers a listener for transitions into s.
func (c *Channel) On(s State, fn func(Change)) (*StateListener, error) {
	return c.machine.On(s, fn)
}

// Once registers a listener for the next transition into s.
func (c *Channel) Once(s State, fn func(Change)) (*StateListener, error) {
	return c.machine.Once(s, fn)
}

// Off removes state listeners of s; all of them when none are given.
func (c *Channel) Off(s State, listeners ...*StateListener) {
	c.machine.Off(s, listeners...)
}

// OnceOrIf runs fn now if the channel is in s, or on its next transition into s.
func (c *Channel) OnceOrIf(s State, fn func(Change)) error {
	return c.machine.OnceOrIf(s, fn)
}

// OnceStateChanged runs fn once, on the next transition into any state.
func (c *Channel) OnceStateChanged(fn func(Change)) {
	c.machine.OnceStateChanged(fn)
}

// OnAnyChange registers fn for every transition; call the result to remove it.
func (c *Channel) OnAnyChange(fn func(Change)) (cancel func()) {
	return c.machine.OnAnyChange(fn)
}

// OnError registers a listener for errors surfaced by the channel, such as
// attach denials and rejected detaches.
func (c *Channel) OnError(fn func(error)) *emitter.Listener[error] {
	return c.machine.OnError(fn)
}

// OffError removes error listeners; all of them when none are given.
func (c *Channel) OffError(listeners ...*emitter.Listener[error]) {
	c.machine.OffError(listeners...)
}

// Subscribe registers fn for inbound messages named name.
func (c *Channel) Subscribe(name string, fn MessageHandler) *Subscription {
	return c.registry.Subscribe(name, fn)
}

// SubscribeAll registers fn for every inbound message.
func (c *Channel) SubscribeAll(fn MessageHandler) *Subscription {
	return c.registry.SubscribeAll(fn)
}

// Unsubscribe removes every subscription for name, or only the given ones.
func (c *Channel) Unsubscribe(name string, subs ...*Subscription) int {
	return c.registry.Unsubscribe(name, subs...)
}

// UnsubscribeAll removes subscriptions to all names; the given ones, or
// every one when none are given.
func (c *Channel) UnsubscribeAll(subs ...*Subscription) int {
	return c.registry.UnsubscribeAll(subs...)
}

// Attach attaches the channel. cb, if set, is called with nil once the
// channel is attached, immediately when it already is, or with the error
// that prevented it.
func (c *Channel) Attach(cb func(error)) {
	c.post(func() { c.attach(cb) }, cb)
}

// Detach detaches the channel. cb, if set, is called with nil once the
// channel is detached.
func (c *Channel) Detach(cb func(error)) {
	c.post(func() { c.detach(cb) }, cb)
}

// Publish sends a message named name. While the channel is not attached
// the message is queued and sent with the next attach. done, if set, is
// called with the message's outcome.
func (c *Channel) Publish(name string, data any, done func(error)) {
	c.post(func() { c.publish(batch.Entry{Name: name, Data: data, Done: c.guard(done)}) }, done)
}

// HandleEnvelope delivers an inbound envelope to subscribers. Messages that
// arrive while the channel is not attached are dropped.
func (c *Channel) HandleEnvelope(env *protocol.Envelope) {
	_ = c.loop.Post(func() { c.deliver(env) })
}

// HandleConnectionState reacts to a connection-level signal.
func (c *Channel) HandleConnectionState(state transport.ConnectionState, err error) {
	_ = c.loop.Post(func() { c.connectionState(state, err) })
}

// Reason returns the error behind the latest failed or suspended state, or
// nil once the channel has attached again.
func (c *Channel) Reason() error {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

func (c *Channel) setReason(err error) {
	c.reasonMu.Lock()
	c.reason = err
	c.reasonMu.Unlock()
}

// Close stops the channel's goroutines. Queued publishes are failed with
// ErrClosed and every listener and subscription is removed. The channel
// must not be used afterwards, and Close must not be called from a channel
// callback.
func (c *Channel) Close(ctx context.Context) error {
	_ = c.loop.Post(func() {
		c.stopRetry()
		c.cancelInFlight()
		c.releaseWaiters(&c.attachWaiters, ErrClosed)
		c.releaseWaiters(&c.detachWaiters, ErrClosed)
		c.queue.FailAll(ErrClosed)
		c.registry.Clear()
		c.machine.OffAll()
	})
	if err := c.loop.Close(ctx); err != nil {
		return err
	}
	return c.io.Close(ctx)
}

func (c *Channel) post(fn func(), cb func(error)) {
	if err := c.loop.Post(fn); err != nil && cb != nil {
		cb(ErrClosed)
	}
}

// --- everything below runs on c.loop ---

func (c *Channel) attach(cb func(error)) {
	switch c.State() {
	case StateAttached:
		c.call(cb, nil)
	case StateAttaching:
		c.addWaiter(&c.attachWaiters, cb)
	case StateDetaching:
		c.releaseWaiters(&c.detachWaiters, ErrSuperseded)
		c.requestAttach(cb)
	default:
		c.requestAttach(cb)
	}
}

func (c *Channel) requestAttach(cb func(error)) {
	c.stopRetry()
	c.addWaiter(&c.attachWaiters, cb)
	attempt, ctx := c.nextAttempt()
	c.setState(StateAttaching, nil)

	c.logger.Debug("requesting attach", log.Uint64("attempt", attempt))
	_ = c.io.Post(func() {
		err := c.transport.Attach(ctx, c.name)
		_ = c.loop.Post(func() { c.attachResult(attempt, err) })
	})
}

func (c *Channel) attachResult(attempt uint64, err error) {
	if attempt != c.attempt || !c.IsAttaching() {
		c.logger.Debug("ignoring superseded attach result", log.Uint64("attempt", attempt))
		return
	}
	c.cancelInFlight()

	switch {
	case err == nil:
		c.attached()
	case protocol.IsRetryable(err):
		c.suspend(err, true)
	default:
		c.fail(err)
	}
}

func (c *Channel) attached() {
	c.backoff.Reset()
	c.setReason(nil)

	// Queued messages go out before anything published by attached listeners.
	c.flush()
	c.setState(StateAttached, nil)
	c.logger.Info("attached")
	c.releaseWaiters(&c.attachWaiters, nil)
}

func (c *Channel) flush() {
	b := c.queue.Flush(c.name, c.newID())
	if b == nil {
		return
	}
	c.logger.Debug("flushing queued messages",
		log.String("envelope", b.Envelope.ID),
		log.Int("messages", b.Size()),
	)
	c.send(b)
}

func (c *Channel) detach(cb func(error)) {
	switch c.State() {
	case StateInitialized, StateDetached:
		c.call(cb, nil)
	case StateFailed:
		c.call(cb, wrapReason(ErrChannelFailed, c.Reason()))
	case StateDetaching:
		c.addWaiter(&c.detachWaiters, cb)
	case StateSuspended:
		// No server-side attachment to release.
		c.stopRetry()
		c.supersede()
		c.queue.FailAll(ErrChannelDetached)
		c.setState(StateDetached, nil)
		c.call(cb, nil)
	case StateAttaching:
		c.releaseWaiters(&c.attachWaiters, ErrSuperseded)
		c.requestDetach(cb)
	default:
		c.requestDetach(cb)
	}
}

func (c *Channel) requestDetach(cb func(error)) {
	c.addWaiter(&c.detachWaiters, cb)
	attempt, ctx := c.nextAttempt()
	if n := c.queue.FailAll(ErrChannelDetached); n > 0 {
		c.logger.Warn("discarded queued messages on detach", log.Int("messages", n))
	}
	c.detachFrom = c.State()
	c.setState(StateDetaching, nil)

	_ = c.io.Post(func() {
		err := c.transport.Detach(ctx, c.name)
		_ = c.loop.Post(func() { c.detachResult(attempt, err) })
	})
}

func (c *Channel) detachResult(attempt uint64, err error) {
	if attempt != c.attempt || !c.IsDetaching() {
		c.logger.Debug("ignoring superseded detach result", log.Uint64("attempt", attempt))
		return
	}
	c.cancelInFlight()

	if err != nil {
		c.logger.Warn("detach failed", log.Err(err))
		c.machine.EmitError(err)
		c.releaseWaiters(&c.detachWaiters, err)

		// An interrupted attach was never confirmed; ask again.
		if c.detachFrom == StateAttaching {
			c.requestAttach(nil)
			return
		}

		// The service still holds the attachment. Publishes made while
		// detaching go out before the state changes back.
		c.flush()
		c.setState(StateAttached, err)
		return
	}

	c.setState(StateDetached, nil)
	c.logger.Info("detached")
	c.releaseWaiters(&c.detachWaiters, nil)
}

func (c *Channel) publish(e batch.Entry) {
	switch c.State() {
	case StateAttached:
		c.send(batch.New(c.name, c.newID(), []batch.Entry{e}))
	case StateFailed:
		if e.Done != nil {
			e.Done(wrapReason(ErrChannelFailed, c.Reason()))
		}
	default:
		c.queue.Enqueue(e)
	}
}

func (c *Channel) send(b *batch.Batch) {
	ctx, cancel := c.requestContext()
	err := c.io.Post(func() {
		defer cancel()
		ack, err := c.transport.Send(ctx, b.Envelope)
		_ = c.loop.Post(func() { c.sendResult(b, ack, err) })
	})
	if err != nil {
		cancel()
		b.Fail(ErrClosed)
	}
}

func (c *Channel) sendResult(b *batch.Batch, ack *protocol.Ack, err error) {
	if err != nil {
		c.logger.Error("send failed",
			log.String("envelope", b.Envelope.ID),
			log.Int("messages", b.Size()),
			log.Err(err),
		)
		b.Fail(err)
		return
	}
	if ack != nil && len(ack.Errors) > 0 {
		c.logger.Warn("messages rejected",
			log.String("envelope", b.Envelope.ID),
			log.Int("rejected", len(ack.Errors)),
		)
	}
	b.Complete(ack, nil)
}

func (c *Channel) deliver(env *protocol.Envelope) {
	if !c.IsAttached() {
		c.logger.Debug("dropping message received while not attached",
			log.String("state", c.State().String()),
			log.String("envelope", env.ID),
		)
		return
	}
	for i, m := range env.Messages {
		m.Index = i
		if m.ID == "" {
			m.ID = protocol.MessageID(env.ID, i)
		}
		c.registry.Deliver(m)
	}
}

func (c *Channel) connectionState(state transport.ConnectionState, err error) {
	current := c.State()
	switch state {
	case transport.StateConnected:
		if current == StateSuspended {
			c.logger.Info("connection recovered, re-attaching")
			c.requestAttach(nil)
		}
	case transport.StateSuspended:
		if current == StateAttached || current == StateAttaching {
			c.suspend(err, false)
		}
	case transport.StateFailed:
		if current != StateInitialized && current != StateDetached && current != StateFailed {
			c.fail(err)
		}
	case transport.StateClosed:
		if current == StateAttached || current == StateAttaching || current == StateSuspended || current == StateDetaching {
			c.stopRetry()
			c.supersede()
			c.queue.FailAll(ErrChannelDetached)
			c.setState(StateDetached, err)
			c.releaseWaiters(&c.attachWaiters, ErrChannelDetached)
			c.releaseWaiters(&c.detachWaiters, nil)
		}
	}
}

// suspend moves to suspended. Queued publishes are kept for the next attach.
func (c *Channel) suspend(err error, scheduleRetry bool) {
	c.supersede()
	c.setReason(err)
	c.setState(StateSuspended, err)
	c.logger.Warn("suspended", log.Err(err))
	c.releaseWaiters(&c.attachWaiters, wrapReason(ErrChannelSuspended, err))

	if scheduleRetry {
		delay := c.backoff.Next()
		c.logger.Debug("scheduling re-attach", log.Duration("delay", delay))
		c.retry = c.loop.AfterFunc(delay, func() {
			if c.IsSuspended() {
				c.requestAttach(nil)
			}
		})
	}
}

func (c *Channel) fail(err error) {
	c.stopRetry()
	c.supersede()
	c.setReason(err)
	c.setState(StateFailed, err)
	c.logger.Error("failed", log.Err(err), log.Int("status", protocol.StatusCode(err)))
	c.machine.EmitError(err)

	c.releaseWaiters(&c.attachWaiters, err)
	c.releaseWaiters(&c.detachWaiters, err)
	if n := c.queue.FailAll(wrapReason(ErrChannelFailed, err)); n > 0 {
		c.logger.Warn("discarded queued messages on failure", log.Int("messages", n))
	}
}

// wrapReason wraps sentinel and reason so both match errors.Is and errors.As.
func wrapReason(sentinel, reason error) error {
	if reason == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, reason)
}

// nextAttempt supersedes any in-flight request and returns the new attempt
// number with a context bounded by the request timeout.
func (c *Channel) nextAttempt() (uint64, context.Context) {
	c.supersede()
	ctx, cancel := c.requestContext()
	c.cancelAttempt = cancel
	return c.attempt, ctx
}

// supersede invalidates any in-flight attach or detach.
func (c *Channel) supersede() {
	c.cancelInFlight()
	c.attempt++
}

func (c *Channel) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *Channel) cancelInFlight() {
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

func (c *Channel) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Channel) setState(s State, reason error) {
	if err := c.machine.ChangeState(s, reason); err != nil {
		panic(err)
	}
}

func (c *Channel) addWaiter(list *[]func(error), cb func(error)) {
	if cb != nil {
		*list = append(*list, cb)
	}
}

func (c *Channel) releaseWaiters(list *[]func(error), err error) {
	waiters := *list
	*list = nil
	for _, cb := range waiters {
		c.call(cb, err)
	}
}

// guard wraps a user callback so a panic inside it is logged instead of
// unwinding the reactor task that called it.
func (c *Channel) guard(cb func(error)) func(error) {
	if cb == nil {
		return nil
	}
	return func(err error) { c.call(cb, err) }
}

func (c *Channel) call(cb func(error), err error) {
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("callback panicked", log.Any("panic", rec))
		}
	}()
	cb(err)
}
