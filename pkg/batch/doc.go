// Package batch buffers publish requests and turns them into envelopes.
//
// A [Queue] holds [Entry] values in insertion order while a channel is not
// attached. [Queue.Flush] drains the whole buffer into a single [Batch]
// whose envelope numbers the messages 0..N-1 in that order. Entries
// enqueued while a batch is being sent land in the next batch, never the
// current one.
//
//	q := batch.NewQueue()
//	q.Enqueue(batch.Entry{Name: "greeting", Data: "hi", Done: done})
//	...
//	if b := q.Flush("room", protocol.NewEnvelopeID()); b != nil {
//	    ack, err := transport.Send(ctx, b.Envelope)
//	    b.Complete(ack, err)
//	}
//
// The queue is not bounded; backpressure belongs to the transport. It is
// not safe for concurrent use and is meant to be confined to its channel's
// reactor goroutine.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
package batch
