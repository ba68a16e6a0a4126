package realtime

import "github.com/bft-labs/relay/pkg/channel"

// EventHandler receives client events. Methods are called from the client's
// and channels' internal goroutines and must not block.
type EventHandler interface {
	// OnConnectionStateChange is called on every connection transition.
	OnConnectionStateChange(change Change)

	// OnChannelStateChange is called on every transition of a channel
	// obtained from the client.
	OnChannelStateChange(name string, change channel.Change)

	// OnError is called for connection failures and channel errors.
	OnError(err error)
}

// BaseEventHandler provides no-op implementations of all EventHandler
// methods. Embed it to implement only the events you care about.
type BaseEventHandler struct{}

func (BaseEventHandler) OnConnectionStateChange(Change)              {}
func (BaseEventHandler) OnChannelStateChange(string, channel.Change) {}
func (BaseEventHandler) OnError(error)                               {}
