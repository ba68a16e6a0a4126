package transport

import (
	"context"
	"errors"

	"github.com/bft-labs/relay/pkg/protocol"
)

// Common transport errors.
var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
)

// ConnectionState is a connection-level signal delivered to the Receiver.
type ConnectionState string

const (
	// StateConnected: the connection is (re-)established.
	StateConnected ConnectionState = "connected"
	// StateDisconnected: the connection dropped; the transport may recover it.
	StateDisconnected ConnectionState = "disconnected"
	// StateSuspended: the connection has been down long enough that channel
	// state can no longer be assumed.
	StateSuspended ConnectionState = "suspended"
	// StateFailed: the connection cannot be recovered.
	StateFailed ConnectionState = "failed"
	// StateClosed: the connection was closed on request.
	StateClosed ConnectionState = "closed"
)

// Receiver consumes inbound traffic from a Transport. Calls arrive on the
// transport's goroutine and must not block.
type Receiver interface {
	HandleEnvelope(env *protocol.Envelope)
	HandleConnectionState(state ConnectionState, err error)
}

// Transport moves envelopes between channels and the service.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Attach asks the service to attach channel. A denial is returned as a
	// *protocol.ErrorInfo carrying the status code.
	Attach(ctx context.Context, channel string) error

	// Detach asks the service to detach channel.
	Detach(ctx context.Context, channel string) error

	// Send transmits env. A non-nil error fails every message; otherwise the
	// Ack reports per-message failures.
	Send(ctx context.Context, env *protocol.Envelope) (*protocol.Ack, error)

	// SetReceiver installs the consumer of inbound traffic.
	SetReceiver(r Receiver)

	// Close shuts the connection down. Safe to call multiple times.
	Close() error
}
