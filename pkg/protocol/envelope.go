package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Action identifies what an envelope carries.
type Action string

const (
	ActionMessage Action = "message"
	ActionAttach  Action = "attach"
	ActionDetach  Action = "detach"
	ActionAck     Action = "ack"
	ActionNack    Action = "nack"
	ActionError   Action = "error"
)

// Envelope is a single transmission carrying one or more ordered messages.
type Envelope struct {
	ID       string     `json:"id"`
	Action   Action     `json:"action"`
	Channel  string     `json:"channel"`
	Messages []Message  `json:"messages,omitempty"`
	Error    *ErrorInfo `json:"error,omitempty"`

	// Errors carries per-message failures on ack envelopes, keyed by index.
	Errors map[int]*ErrorInfo `json:"errors,omitempty"`
}

// Message is one application message inside an envelope.
type Message struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Data  any    `json:"data,omitempty"`
	Index int    `json:"index"`
}

// NewEnvelopeID returns a fresh opaque envelope identifier.
func NewEnvelopeID() string {
	return uuid.NewString()
}

// MessageID derives the id of the message at index within envelopeID.
func MessageID(envelopeID string, index int) string {
	return envelopeID + ":" + strconv.Itoa(index)
}

// ParseMessageID splits a message id into its envelope id and index.
func ParseMessageID(id string) (envelopeID string, index int, err error) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("protocol: malformed message id %q", id)
	}
	index, err = strconv.Atoi(id[i+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("protocol: malformed message index in %q", id)
	}
	return id[:i], index, nil
}

// Normalize assigns indices 0..N-1 in order and derives every message id
// that is not already set.
func (e *Envelope) Normalize() {
	for i := range e.Messages {
		e.Messages[i].Index = i
		if e.Messages[i].ID == "" {
			e.Messages[i].ID = MessageID(e.ID, i)
		}
	}
}

// Size returns the number of messages in the envelope.
func (e *Envelope) Size() int {
	return len(e.Messages)
}

// Ack is the transport's acknowledgement of a sent envelope. Errors holds
// per-message failures keyed by index; messages without an entry succeeded.
type Ack struct {
	EnvelopeID string             `json:"envelope_id"`
	Errors     map[int]*ErrorInfo `json:"errors,omitempty"`
}

// ErrFor returns the failure reported for the message at index, if any.
func (a *Ack) ErrFor(index int) error {
	if a == nil || a.Errors == nil {
		return nil
	}
	if ei, ok := a.Errors[index]; ok && ei != nil {
		return ei
	}
	return nil
}
