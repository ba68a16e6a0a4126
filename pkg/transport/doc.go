// Package transport defines the boundary between channels and the network.
//
// A [Transport] attaches and detaches channels, sends envelopes and reports
// inbound envelopes and connection-state signals to a [Receiver]. Every
// blocking method takes a context; timeouts are the caller's choice of
// deadline.
//
// Implementations:
//   - [github.com/bft-labs/relay/pkg/transport/ws]: JSON frames over a WebSocket.
//   - [github.com/bft-labs/relay/pkg/transport/loopback]: an in-process broker
//     for tests and embedding.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
package transport
