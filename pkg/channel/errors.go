package channel

import "errors"

// Channel errors. Failures reported by the service are *protocol.ErrorInfo
// values wrapped by these where a state is involved.
var (
	// ErrChannelFailed is reported to publishes on, or queued in, a failed channel.
	ErrChannelFailed = errors.New("channel: failed")

	// ErrChannelDetached is reported to queued publishes discarded by a detach.
	ErrChannelDetached = errors.New("channel: detached")

	// ErrChannelSuspended is reported to attach callbacks when the attach
	// could not complete and will be retried.
	ErrChannelSuspended = errors.New("channel: suspended")

	// ErrSuperseded is reported to the callbacks of an attach or detach that
	// was interrupted by the opposite request.
	ErrSuperseded = errors.New("channel: superseded by a later request")

	// ErrClosed is reported when the channel has been closed.
	ErrClosed = errors.New("channel: closed")
)
