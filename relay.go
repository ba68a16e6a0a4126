// Package relay is a client for channel-based realtime pub/sub.
//
// Example usage:
//
//	t := ws.New("wss://realtime.relay.dev/v1",
//	    ws.WithMetadata(transport.Metadata{APIKey: key}))
//	client, err := relay.New(t, relay.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	ch := client.Channels().Get("prices")
//	ch.Subscribe("tick", func(m channel.Message) { fmt.Println(m.Data) })
//	ch.Attach(nil)
package relay

import (
	"github.com/bft-labs/relay/pkg/channel"
	"github.com/bft-labs/relay/pkg/realtime"
	"github.com/bft-labs/relay/pkg/transport"
)

// Client is a connection to the realtime service and the channels on it.
type Client = realtime.Client

// Config holds client timing configuration.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = realtime.Config

// Channel is a named pub/sub channel.
type Channel = channel.Channel

// Message is an application message delivered on a channel.
type Message = channel.Message

// New creates a client over t. The client does not connect until Connect
// is called.
func New(t transport.Transport, cfg Config, opts ...realtime.Option) (*Client, error) {
	return realtime.New(t, cfg, opts...)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return realtime.DefaultConfig()
}

// Version is the client library version.
const Version = realtime.Version
