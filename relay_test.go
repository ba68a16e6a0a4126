package relay_test

import (
	"context"
	"fmt"

	"github.com/bft-labs/relay"
	"github.com/bft-labs/relay/pkg/transport/loopback"
)

func Example() {
	ctx := context.Background()

	client, err := relay.New(loopback.NewBroker().Dial(), relay.DefaultConfig())
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close(ctx)

	if err := client.Connect(ctx); err != nil {
		fmt.Println(err)
		return
	}

	received := make(chan relay.Message, 1)
	ch := client.Channels().Get("prices")
	ch.Subscribe("tick", func(m relay.Message) { received <- m })

	attached := make(chan error, 1)
	ch.Attach(func(err error) { attached <- err })
	fmt.Println("attach:", <-attached)

	ch.Publish("tick", 12.5, nil)
	m := <-received
	fmt.Println(m.Name, m.Data)

	// Output:
	// attach: <nil>
	// tick 12.5
}
