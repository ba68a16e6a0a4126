// Package realtime is the entry point for applications: a Client owns one
// transport connection and the channels multiplexed over it.
//
// # Basic Usage
//
//	t := ws.New("wss://relay.example.com/v1/realtime",
//	    ws.WithMetadata(transport.Metadata{APIKey: key}))
//
//	client, err := realtime.New(t, realtime.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	ch := client.Channels().Get("updates")
//	ch.Subscribe("price", func(m channel.Message) { fmt.Println(m.Data) })
//	ch.Attach(nil)
//	ch.Publish("price", 42, nil)
//
// # Connection State
//
// The connection moves through [StateInitialized], [StateConnecting],
// [StateConnected], [StateDisconnected], [StateSuspended], [StateClosed] and
// [StateFailed]. A dropped connection is redialled with exponential backoff.
// Once it has been down for [Config.SuspendAfter] every channel is
// suspended; channels re-attach by themselves when the connection returns.
//
// # Event Handling
//
// Implement [EventHandler] (embed [BaseEventHandler] for no-op defaults) and
// pass it with [WithEventHandler] to observe connection and channel changes.
package realtime
