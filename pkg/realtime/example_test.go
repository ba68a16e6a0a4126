package realtime_test

import (
	"context"
	"fmt"

	"github.com/bft-labs/relay/pkg/channel"
	"github.com/bft-labs/relay/pkg/realtime"
	"github.com/bft-labs/relay/pkg/transport/loopback"
)

// ExampleNew shows publishing and subscribing over an in-process broker.
func ExampleNew() {
	ctx := context.Background()
	broker := loopback.NewBroker()

	client, err := realtime.New(broker.Dial(), realtime.DefaultConfig())
	if err != nil {
		fmt.Printf("failed to create client: %v\n", err)
		return
	}
	defer client.Close(ctx)

	if err := client.Connect(ctx); err != nil {
		fmt.Printf("failed to connect: %v\n", err)
		return
	}

	received := make(chan channel.Message, 1)
	ch := client.Channels().Get("greetings")
	ch.Subscribe("hello", func(m channel.Message) { received <- m })

	// Published before the attach completes; flushed once attached.
	published := make(chan error, 1)
	ch.Publish("hello", "world", func(err error) { published <- err })
	ch.Attach(nil)

	fmt.Println("publish error:", <-published)
	m := <-received
	fmt.Printf("%s: %v\n", m.Name, m.Data)

	// Output:
	// publish error: <nil>
	// hello: world
}

// Example_eventHandler shows observing connection changes.
func Example_eventHandler() {
	ctx := context.Background()
	handler := &printingHandler{done: make(chan struct{})}

	client, err := realtime.New(loopback.NewBroker().Dial(), realtime.DefaultConfig(),
		realtime.WithEventHandler(handler))
	if err != nil {
		fmt.Printf("failed to create client: %v\n", err)
		return
	}
	defer client.Close(ctx)

	_ = client.Connect(ctx)
	<-handler.done

	// Output:
	// connection: initialized -> connecting
	// connection: connecting -> connected
}

type printingHandler struct {
	realtime.BaseEventHandler

	done chan struct{}
}

func (h *printingHandler) OnConnectionStateChange(c realtime.Change) {
	if c.Current == realtime.StateClosed {
		return
	}
	fmt.Printf("connection: %s -> %s\n", c.Previous, c.Current)
	if c.Current == realtime.StateConnected {
		close(h.done)
	}
}
