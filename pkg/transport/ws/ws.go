// Package ws implements transport.Transport with JSON envelopes over a
// WebSocket connection.
//
// Requests (attach, detach, message) are answered by an envelope with the
// same id: ack on success, nack or error carrying an ErrorInfo otherwise.
// Inbound message envelopes and id-less error envelopes are forwarded to
// the Receiver.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/protocol"
	"github.com/bft-labs/relay/pkg/transport"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadLimit        = 1 << 20
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger.
func WithLogger(l log.Logger) Option {
	return func(t *Transport) {
		t.logger = log.OrNoop(l)
	}
}

// WithMetadata sends m as handshake headers.
func WithMetadata(m transport.Metadata) Option {
	return func(t *Transport) {
		t.header = m.Header()
	}
}

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithReadLimit bounds the size of inbound frames.
func WithReadLimit(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.readLimit = n
		}
	}
}

// Transport is a WebSocket connection to a relay service.
type Transport struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	readLimit int64
	logger    log.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	receiver transport.Receiver
	pending  map[string]chan *protocol.Envelope
	closed   bool

	writeMu sync.Mutex
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport for url. It is not connected until Connect.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:       url,
		header:    http.Header{},
		dialer:    &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		readLimit: defaultReadLimit,
		logger:    log.NoopLogger{},
		pending:   make(map[string]chan *protocol.Envelope),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetReceiver installs the consumer of inbound traffic.
func (t *Transport) SetReceiver(r transport.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

// Connect dials the service. Calling it while connected is a no-op; after a
// drop it dials again.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		if resp != nil {
			return handshakeError(resp, err)
		}
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	conn.SetReadLimit(t.readLimit)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return transport.ErrClosed
	}
	if t.conn != nil {
		// A concurrent Connect won the race.
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()

	t.logger.Info("connected", log.String("url", t.url))
	go t.readLoop(conn)
	t.signal(transport.StateConnected, nil)
	return nil
}

// handshakeError maps a rejected upgrade to an ErrorInfo so that auth
// failures are final and server errors retryable.
func handshakeError(resp *http.Response, err error) error {
	return fmt.Errorf("handshake: %w", protocol.NewErrorInfo(resp.StatusCode, 0, fmt.Sprintf("%s: %v", resp.Status, err)))
}

// Attach attaches channel.
func (t *Transport) Attach(ctx context.Context, channel string) error {
	_, err := t.request(ctx, &protocol.Envelope{
		ID:      protocol.NewEnvelopeID(),
		Action:  protocol.ActionAttach,
		Channel: channel,
	})
	return err
}

// Detach detaches channel.
func (t *Transport) Detach(ctx context.Context, channel string) error {
	_, err := t.request(ctx, &protocol.Envelope{
		ID:      protocol.NewEnvelopeID(),
		Action:  protocol.ActionDetach,
		Channel: channel,
	})
	return err
}

// Send transmits env and waits for its ack.
func (t *Transport) Send(ctx context.Context, env *protocol.Envelope) (*protocol.Ack, error) {
	reply, err := t.request(ctx, env)
	if err != nil {
		return nil, err
	}
	return &protocol.Ack{EnvelopeID: env.ID, Errors: reply.Errors}, nil
}

func (t *Transport) request(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	reply := make(chan *protocol.Envelope, 1)

	t.mu.Lock()
	conn := t.conn
	switch {
	case t.closed:
		t.mu.Unlock()
		return nil, transport.ErrClosed
	case conn == nil:
		t.mu.Unlock()
		return nil, transport.ErrNotConnected
	}
	t.pending[env.ID] = reply
	t.mu.Unlock()

	defer t.forget(env.ID)

	if err := t.write(conn, env); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		if r == nil {
			return nil, transport.ErrNotConnected
		}
		switch r.Action {
		case protocol.ActionAck:
			return r, nil
		case protocol.ActionNack, protocol.ActionError:
			if r.Error != nil {
				return nil, r.Error
			}
			return nil, protocol.NewErrorInfo(500, 0, fmt.Sprintf("%s without error details", r.Action))
		default:
			return nil, fmt.Errorf("unexpected reply action %q to %s", r.Action, env.Action)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) write(conn *websocket.Conn, env *protocol.Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s envelope: %w", env.Action, err)
	}
	return nil
}

func (t *Transport) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.dropped(conn, err)
			return
		}
		t.dispatch(&env)
	}
}

func (t *Transport) dispatch(env *protocol.Envelope) {
	switch env.Action {
	case protocol.ActionMessage:
		env.Normalize()
		if r := t.currentReceiver(); r != nil {
			r.HandleEnvelope(env)
		}
		return
	}

	t.mu.Lock()
	reply, ok := t.pending[env.ID]
	if ok {
		delete(t.pending, env.ID)
	}
	t.mu.Unlock()

	switch {
	case ok:
		reply <- env
	case env.Action == protocol.ActionError:
		// Connection-level error from the service.
		t.logger.Error("service error", log.Err(env.Error))
		if env.Error != nil && !env.Error.Retryable() {
			t.signal(transport.StateFailed, env.Error)
		}
	default:
		t.logger.Debug("ignoring unmatched reply",
			log.String("id", env.ID),
			log.String("action", string(env.Action)),
		)
	}
}

// dropped tears down a connection whose read side ended. Pending requests
// fail with ErrNotConnected.
func (t *Transport) dropped(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	closed := t.closed
	pending := t.pending
	t.pending = make(map[string]chan *protocol.Envelope)
	t.mu.Unlock()

	_ = conn.Close()
	for _, reply := range pending {
		reply <- nil
	}
	if closed {
		return
	}

	t.logger.Warn("connection lost", log.Err(err))
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.signal(transport.StateFailed, fmt.Errorf("closed by service: %w", err))
		return
	}
	t.signal(transport.StateDisconnected, err)
}

// Close closes the connection. Safe to call multiple times.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	pending := t.pending
	t.pending = make(map[string]chan *protocol.Envelope)
	t.mu.Unlock()

	for _, reply := range pending {
		reply <- nil
	}

	var err error
	if conn != nil {
		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			t.logger.Debug("close frame not sent", log.Err(werr))
		}
		err = conn.Close()
	}
	t.signal(transport.StateClosed, nil)
	return err
}

func (t *Transport) signal(state transport.ConnectionState, err error) {
	if r := t.currentReceiver(); r != nil {
		r.HandleConnectionState(state, err)
	}
}

func (t *Transport) currentReceiver() transport.Receiver {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receiver
}
