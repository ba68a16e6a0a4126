package realtime

import (
	"context"
	"errors"
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

// State is the connection state of a Client.
type State string

const (
	StateInitialized  State = "initialized"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateSuspended    State = "suspended"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// States lists every connection state in declaration order.
var States = []State{
	StateInitialized,
	StateConnecting,
	StateConnected,
	StateDisconnected,
	StateSuspended,
	StateClosed,
	StateFailed,
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Change describes a connection state transition.
type Change = lifecycle.Change[State]

// StateListener is a handle to a registered connection state listener.
type StateListener = lifecycle.Listener[State]

// Client errors.
var (
	ErrClosed = errors.New("realtime: client closed")

	// ErrConnectionSuspended is the reason given to channels suspended
	// because the connection stayed down.
	ErrConnectionSuspended = errors.New("realtime: connection suspended")

	// ErrConnectionLost is the reason given to channels whose attachment was
	// lost with a dropped connection.
	ErrConnectionLost = errors.New("realtime: connection lost")
)

// Client owns a transport connection and the channels using it.
type Client struct {
	cfg       Config
	transport transport.Transport
	logger    log.Logger
	handler   EventHandler
	newID     func() string

	machine  *lifecycle.Machine[State]
	channels *Channels

	// loop serializes connection handling; dial runs redials off it.
	loop *reactor.Reactor
	dial *reactor.Reactor

	// Fields below are confined to loop.
	backoff           *lifecycle.Backoff
	reconnect         *time.Timer
	suspendTimer      *time.Timer
	dropped           bool
	channelsSuspended bool
	closing           bool

	closeOnce sync.Once
	closeErr  error
}

var _ transport.Receiver = (*Client)(nil)

// New creates a client over t in StateInitialized; call Connect to dial.
// Returns an error if cfg is invalid.
func New(t transport.Transport, cfg Config, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, errors.New("realtime: nil transport")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := log.OrNoop(o.logger)

	machine, err := lifecycle.New(StateInitialized, States,
		lifecycle.WithLogger(logger),
		lifecycle.WithName("connection"),
	)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		transport: t,
		logger:    logger,
		handler:   o.eventHandler,
		newID:     o.newID,
		machine:   machine,
		loop:      reactor.New(reactor.WithLogger(logger)),
		dial:      reactor.New(reactor.WithLogger(logger)),
		backoff:   lifecycle.NewBackoff(cfg.ReconnectInitial, cfg.ReconnectMax),
	}
	c.channels = newChannels(c)

	if c.handler != nil {
		machine.OnAnyChange(c.handler.OnConnectionStateChange)
		machine.OnError(c.handler.OnError)
	}

	t.SetReceiver(c)
	return c, nil
}

// State returns the connection state.
func (c *Client) State() State {
	return c.machine.State()
}

// Is reports whether the connection is in state s.
func (c *Client) Is(s State) bool {
	return c.machine.Is(s)
}

// On registers a listener for transitions into s.
func (c *Client) On(s State, fn func(Change)) (*StateListener, error) {
	return c.machine.On(s, fn)
}

// Once registers a listener for the next transition into s.
func (c *Client) Once(s State, fn func(Change)) (*StateListener, error) {
	return c.machine.Once(s, fn)
}

// Off removes listeners of s; all of them when none are given.
func (c *Client) Off(s State, listeners ...*StateListener) {
	c.machine.Off(s, listeners...)
}

// OnceOrIf runs fn now if the connection is in s, or on its next transition into s.
func (c *Client) OnceOrIf(s State, fn func(Change)) error {
	return c.machine.OnceOrIf(s, fn)
}

// OnError registers a listener for connection failures.
func (c *Client) OnError(fn func(error)) *emitter.Listener[error] {
	return c.machine.OnError(fn)
}

// Channels returns the client's channel registry.
func (c *Client) Channels() *Channels {
	return c.channels
}

// Connect dials the service and blocks until the dial completes. A
// retryable failure leaves the client redialling in the background; a
// final one (4xx) moves it to StateFailed.
func (c *Client) Connect(ctx context.Context) error {
	started := make(chan error, 1)
	err := c.loop.Post(func() {
		switch c.State() {
		case StateClosed:
			started <- ErrClosed
		case StateConnected, StateConnecting:
			started <- nil
		default:
			c.stopReconnect()
			c.setState(StateConnecting, nil)
			started <- nil
		}
	})
	if err != nil {
		return ErrClosed
	}
	if err := <-started; err != nil {
		return err
	}

	err = c.transport.Connect(ctx)
	_ = c.loop.Post(func() { c.connectResult(err) })
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// HandleEnvelope routes an inbound envelope to its channel. Envelopes for
// channels the client does not hold are dropped.
func (c *Client) HandleEnvelope(env *protocol.Envelope) {
	ch := c.channels.lookup(env.Channel)
	if ch == nil {
		c.logger.Debug("dropping envelope for unknown channel",
			log.String("channel", env.Channel),
			log.String("envelope", env.ID),
		)
		return
	}
	ch.HandleEnvelope(env)
}

// HandleConnectionState reacts to a signal from the transport.
func (c *Client) HandleConnectionState(state transport.ConnectionState, err error) {
	_ = c.loop.Post(func() { c.connectionState(state, err) })
}

// Close closes every channel and the transport. Queued publishes fail with
// channel.ErrClosed. Safe to call multiple times.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(ctx)
	})
	return c.closeErr
}

func (c *Client) close(ctx context.Context) error {
	_ = c.loop.Post(func() {
		c.closing = true
		c.stopReconnect()
		c.stopSuspendTimer()
	})

	var errs []error
	if err := c.channels.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	_ = c.loop.Post(func() {
		c.setState(StateClosed, nil)
		c.logger.Info("connection closed")
	})
	if err := c.loop.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := c.dial.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// --- everything below runs on c.loop ---

func (c *Client) connectResult(err error) {
	if err == nil || c.closing || c.Is(StateClosed) {
		// Success is reported by the transport's connected signal.
		return
	}
	if !protocol.IsRetryable(err) {
		c.fail(err)
		return
	}
	c.logger.Warn("connect failed", log.Err(err))
	if !c.Is(StateSuspended) {
		c.setState(StateDisconnected, err)
	}
	c.startSuspendTimer()
	c.scheduleReconnect()
}

func (c *Client) connectionState(state transport.ConnectionState, err error) {
	if c.closing || c.Is(StateClosed) {
		return
	}

	switch state {
	case transport.StateConnected:
		c.stopReconnect()
		c.stopSuspendTimer()
		c.backoff.Reset()
		c.setState(StateConnected, nil)
		c.logger.Info("connected")

		// Attachments do not survive a dropped connection; suspended
		// channels re-attach on the connected signal below.
		if c.dropped && !c.channelsSuspended {
			c.channels.forward(transport.StateSuspended, ErrConnectionLost)
		}
		c.dropped = false
		c.channelsSuspended = false
		c.channels.forward(transport.StateConnected, nil)

	case transport.StateDisconnected:
		c.dropped = true
		if !c.Is(StateSuspended) {
			c.setState(StateDisconnected, err)
		}
		c.logger.Warn("disconnected", log.Err(err))
		c.channels.forward(transport.StateDisconnected, err)
		c.startSuspendTimer()
		c.scheduleReconnect()

	case transport.StateSuspended:
		c.dropped = true
		c.suspend(err)
		c.scheduleReconnect()

	case transport.StateFailed:
		c.fail(err)

	case transport.StateClosed:
		// Closed by the service rather than by Close.
		c.stopReconnect()
		c.stopSuspendTimer()
		c.setState(StateClosed, err)
		c.channels.forward(transport.StateClosed, err)
	}
}

func (c *Client) suspend(err error) {
	if c.Is(StateSuspended) {
		return
	}
	c.stopSuspendTimer()
	c.channelsSuspended = true
	c.setState(StateSuspended, err)
	c.logger.Warn("connection suspended", log.Err(err))

	reason := ErrConnectionSuspended
	if err != nil {
		reason = fmt.Errorf("%w: %w", ErrConnectionSuspended, err)
	}
	c.channels.forward(transport.StateSuspended, reason)
}

func (c *Client) fail(err error) {
	c.stopReconnect()
	c.stopSuspendTimer()
	c.setState(StateFailed, err)
	c.logger.Error("connection failed", log.Err(err), log.Int("status", protocol.StatusCode(err)))
	c.machine.EmitError(err)
	c.channels.forward(transport.StateFailed, err)
}

func (c *Client) scheduleReconnect() {
	if c.reconnect != nil {
		return
	}
	delay := c.backoff.Next()
	c.logger.Debug("scheduling reconnect", log.Duration("delay", delay))

	var timer *time.Timer
	timer = c.loop.AfterFunc(delay, func() {
		if c.reconnect != timer {
			return
		}
		c.reconnect = nil
		if c.closing || !(c.Is(StateDisconnected) || c.Is(StateSuspended)) {
			return
		}
		c.redial()
	})
	c.reconnect = timer
}

func (c *Client) redial() {
	c.logger.Info("reconnecting")
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	_ = c.dial.Post(func() {
		defer cancel()
		err := c.transport.Connect(ctx)
		_ = c.loop.Post(func() { c.connectResult(err) })
	})
}

func (c *Client) startSuspendTimer() {
	if c.suspendTimer != nil || c.Is(StateSuspended) {
		return
	}
	var timer *time.Timer
	timer = c.loop.AfterFunc(c.cfg.SuspendAfter, func() {
		if c.suspendTimer != timer {
			return
		}
		c.suspendTimer = nil
		if c.Is(StateDisconnected) {
			c.suspend(nil)
		}
	})
	c.suspendTimer = timer
}

func (c *Client) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) stopSuspendTimer() {
	if c.suspendTimer != nil {
		c.suspendTimer.Stop()
		c.suspendTimer = nil
	}
}

func (c *Client) setState(s State, reason error) {
	if err := c.machine.ChangeState(s, reason); err != nil {
		panic(err)
	}
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"log":       {log.Version, log.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"batch":     {batch.Version, batch.MinCompatibleVersion},
		"transport": {transport.Version, transport.MinCompatibleVersion},
		"realtime":  {Version, MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}

	return nil
}

// isVersionCompatible reports whether version >= minVersion, both in
// "major.minor.patch" form.
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
