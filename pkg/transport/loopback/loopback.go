// Package loopback provides an in-process Transport. Every envelope sent
// through a Broker is echoed to each connection attached to its channel,
// including the sender's.
package loopback

import (
	"context"
	"sync"

	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/protocol"
	"github.com/bft-labs/relay/pkg/reactor"
	"github.com/bft-labs/relay/pkg/transport"
)

// Broker routes envelopes between loopback connections.
type Broker struct {
	mu       sync.RWMutex
	conns    map[*Transport]struct{}
	denied   map[string]*protocol.ErrorInfo
	rejected map[string]*protocol.ErrorInfo
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		conns:    make(map[*Transport]struct{}),
		denied:   make(map[string]*protocol.ErrorInfo),
		rejected: make(map[string]*protocol.ErrorInfo),
	}
}

// Deny makes attach requests for channel fail with info.
func (b *Broker) Deny(channel string, info *protocol.ErrorInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied[channel] = info
}

// Allow lifts a previous Deny.
func (b *Broker) Allow(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.denied, channel)
}

// Reject makes every message named name fail in the ack with info.
// Rejected messages are not delivered.
func (b *Broker) Reject(name string, info *protocol.ErrorInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejected[name] = info
}

// Option configures a loopback Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger.
func WithLogger(l log.Logger) Option {
	return func(t *Transport) {
		t.logger = log.OrNoop(l)
	}
}

// Dial creates a transport bound to b. It is not connected until Connect.
func (b *Broker) Dial(opts ...Option) *Transport {
	t := &Transport{
		broker:   b,
		attached: make(map[string]bool),
		logger:   log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.inbound = reactor.New(reactor.WithLogger(t.logger))
	return t
}

func (b *Broker) register(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[t] = struct{}{}
}

func (b *Broker) unregister(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, t)
}

func (b *Broker) denial(channel string) *protocol.ErrorInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.denied[channel]
}

// publish acknowledges env and fans the accepted messages out to every
// connection attached to its channel.
func (b *Broker) publish(env *protocol.Envelope) *protocol.Ack {
	b.mu.RLock()
	ack := &protocol.Ack{EnvelopeID: env.ID}
	accepted := make([]protocol.Message, 0, len(env.Messages))
	for i, m := range env.Messages {
		if info, ok := b.rejected[m.Name]; ok {
			if ack.Errors == nil {
				ack.Errors = make(map[int]*protocol.ErrorInfo)
			}
			ack.Errors[i] = info
			continue
		}
		accepted = append(accepted, m)
	}
	targets := make([]*Transport, 0, len(b.conns))
	for t := range b.conns {
		targets = append(targets, t)
	}
	b.mu.RUnlock()

	if len(accepted) == 0 {
		return ack
	}
	for _, t := range targets {
		t.deliver(&protocol.Envelope{
			ID:       env.ID,
			Action:   protocol.ActionMessage,
			Channel:  env.Channel,
			Messages: append([]protocol.Message(nil), accepted...),
		})
	}
	return ack
}

// Transport is one connection to a Broker.
type Transport struct {
	broker *Broker
	logger log.Logger

	mu        sync.Mutex
	receiver  transport.Receiver
	connected bool
	closed    bool
	attached  map[string]bool

	// inbound keeps receiver calls off the sender's goroutine and in order.
	inbound *reactor.Reactor
}

var _ transport.Transport = (*Transport)(nil)

// SetReceiver installs the consumer of inbound traffic.
func (t *Transport) SetReceiver(r transport.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Connect joins the broker.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.connected = true
	t.mu.Unlock()

	t.broker.register(t)
	t.logger.Debug("loopback connected")
	t.signal(transport.StateConnected, nil)
	return nil
}

// Attach attaches channel unless the broker denies it.
func (t *Transport) Attach(ctx context.Context, channel string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if info := t.broker.denial(channel); info != nil {
		return info
	}
	t.mu.Lock()
	t.attached[channel] = true
	t.mu.Unlock()
	return nil
}

// Detach detaches channel. Detaching an unattached channel succeeds.
func (t *Transport) Detach(ctx context.Context, channel string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.attached, channel)
	t.mu.Unlock()
	return nil
}

// Send publishes env through the broker.
func (t *Transport) Send(ctx context.Context, env *protocol.Envelope) (*protocol.Ack, error) {
	if err := t.ready(ctx); err != nil {
		return nil, err
	}
	return t.broker.publish(env), nil
}

// Interrupt simulates a connection-level signal such as a drop or a
// recovery. A suspended, failed or closed signal detaches every channel on
// this connection.
func (t *Transport) Interrupt(state transport.ConnectionState, err error) {
	t.mu.Lock()
	switch state {
	case transport.StateConnected:
		t.connected = true
	case transport.StateDisconnected:
		t.connected = false
	default:
		t.connected = false
		t.attached = make(map[string]bool)
	}
	t.mu.Unlock()
	t.signal(state, err)
}

// Close leaves the broker. Safe to call multiple times.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.attached = make(map[string]bool)
	t.mu.Unlock()

	t.broker.unregister(t)
	t.signal(transport.StateClosed, nil)
	// Receiver calls already queued still run.
	return t.inbound.Close(context.Background())
}

func (t *Transport) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.closed:
		return transport.ErrClosed
	case !t.connected:
		return transport.ErrNotConnected
	}
	return nil
}

func (t *Transport) deliver(env *protocol.Envelope) {
	t.mu.Lock()
	attached := t.attached[env.Channel]
	t.mu.Unlock()
	if !attached {
		return
	}
	_ = t.inbound.Post(func() {
		if r := t.currentReceiver(); r != nil {
			r.HandleEnvelope(env)
		}
	})
}

func (t *Transport) signal(state transport.ConnectionState, err error) {
	_ = t.inbound.Post(func() {
		if r := t.currentReceiver(); r != nil {
			r.HandleConnectionState(state, err)
		}
	})
}

func (t *Transport) currentReceiver() transport.Receiver {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receiver
}

// Sync waits until every inbound delivery queued so far has reached the
// receiver.
func (t *Transport) Sync(ctx context.Context) error {
	return t.inbound.Sync(ctx)
}
