// Package channel implements the client side of a realtime pub/sub channel.
//
// A [Channel] tracks its attachment state, queues publishes issued before it
// is attached and delivers inbound messages to subscribers filtered by
// message name.
//
// # States
//
//	initialized -> attaching -> attached -> detaching -> detached
//	any         -> suspended (connection interrupted or retryable attach failure)
//	any         -> failed    (non-retryable denial, carries *protocol.ErrorInfo)
//
// Suspended channels re-attach automatically: after a backoff delay when the
// attach itself failed, or as soon as the connection reports it is connected
// again.
//
// # Concurrency
//
// Each channel is a single logical actor. Public methods post work to the
// channel's reactor and return immediately; callbacks, state listeners and
// message subscribers all run on that reactor goroutine, one at a time.
// Transport calls run in order on a second goroutine and post their results
// back.
//
// # Publishing before attach
//
// Publishes issued while the channel is not attached are queued. When the
// channel reaches attached, the whole queue goes out as one envelope whose
// messages keep their publish order and are numbered 0..N-1, so their ids
// are "{envelope id}:0", "{envelope id}:1", and so on. Detaching or failing
// the channel reports ErrChannelDetached or ErrChannelFailed to every queued
// publish; nothing is dropped silently.
package channel
