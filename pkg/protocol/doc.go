// Package protocol contains the value types exchanged between a channel and
// its transport: envelopes, messages, acknowledgements and error details.
//
// An [Envelope] is one outbound or inbound transmission. Every [Message] in
// it carries its position as Index, and its id is derived as
// "{envelope id}:{index}" (see [MessageID]).
package protocol
