package batch

// Queue buffers entries in FIFO order until they are flushed.
type Queue struct {
	entries []Entry
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends e to the tail of the queue.
func (q *Queue) Enqueue(e Entry) {
	q.entries = append(q.entries, e)
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// HasPending returns true if there are entries waiting to be flushed.
func (q *Queue) HasPending() bool {
	return len(q.entries) > 0
}

// Drain removes and returns every pending entry. Entries enqueued after
// Drain returns start a fresh buffer.
func (q *Queue) Drain() []Entry {
	drained := q.entries
	q.entries = nil
	return drained
}

// Flush drains the queue into one batch for channel. It returns nil when the
// queue is empty.
func (q *Queue) Flush(channel, envelopeID string) *Batch {
	if !q.HasPending() {
		return nil
	}
	return New(channel, envelopeID, q.Drain())
}

// FailAll drains the queue and reports err to every drained entry. It
// returns the number of entries discarded.
func (q *Queue) FailAll(err error) int {
	drained := q.Drain()
	for _, e := range drained {
		if e.Done != nil {
			e.Done(err)
		}
	}
	return len(drained)
}
