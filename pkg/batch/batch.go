package batch

import "github.com/bft-labs/relay/pkg/protocol"

// Entry is a pending publish request.
type Entry struct {
	Name string
	Data any

	// Done, when set, is called once with the entry's outcome: nil when the
	// transport accepted the message, the failure otherwise.
	Done func(error)
}

// Batch is a flushed group of entries and the envelope built from them.
// Entries[i] corresponds to Envelope.Messages[i].
type Batch struct {
	Envelope *protocol.Envelope
	Entries  []Entry
}

// New builds a batch for channel from entries, in order, under envelopeID.
func New(channel, envelopeID string, entries []Entry) *Batch {
	env := &protocol.Envelope{
		ID:       envelopeID,
		Action:   protocol.ActionMessage,
		Channel:  channel,
		Messages: make([]protocol.Message, len(entries)),
	}
	for i, e := range entries {
		env.Messages[i] = protocol.Message{Name: e.Name, Data: e.Data}
	}
	env.Normalize()

	return &Batch{Envelope: env, Entries: entries}
}

// Size returns the number of entries in the batch.
func (b *Batch) Size() int {
	return len(b.Entries)
}

// Complete reports the send outcome to every entry. A non-nil err fails
// all entries; otherwise each entry gets its own result from ack.
func (b *Batch) Complete(ack *protocol.Ack, err error) {
	for i, e := range b.Entries {
		if e.Done == nil {
			continue
		}
		if err != nil {
			e.Done(err)
			continue
		}
		e.Done(ack.ErrFor(i))
	}
}

// Fail reports err to every entry.
func (b *Batch) Fail(err error) {
	b.Complete(nil, err)
}
