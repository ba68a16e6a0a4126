package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bft-labs/relay/pkg/channel"
)

func newSubscribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <channel> [names...]",
		Short: "Print messages from a channel as JSON lines",
		Long: `Attach to a channel and print every inbound message to stdout as one JSON
object per line. When names are given only those messages are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown(client)

			ch := client.Channels().Get(args[0])

			var mu sync.Mutex
			enc := json.NewEncoder(os.Stdout)
			emit := func(m channel.Message) {
				mu.Lock()
				defer mu.Unlock()
				if err := enc.Encode(m); err != nil {
					a.log.Warn().Err(err).Str("name", m.Name).Msg("encode message")
				}
			}

			if names := args[1:]; len(names) > 0 {
				for _, name := range names {
					ch.Subscribe(name, emit)
				}
			} else {
				ch.SubscribeAll(emit)
			}

			if err := attach(ctx, ch); err != nil {
				return fmt.Errorf("attach %s: %w", args[0], err)
			}
			a.log.Info().Str("channel", args[0]).Msg("subscribed")

			<-ctx.Done()
			return nil
		},
	}
}
