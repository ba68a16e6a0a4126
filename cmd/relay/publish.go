package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <channel> <name> <data>",
		Short: "Publish one message and wait for the acknowledgement",
		Long: `Publish one message to a channel. The data argument is decoded as JSON
when it parses, otherwise it is sent as a string.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown(client)

			ch := client.Channels().Get(args[0])

			// Queued until the attach completes.
			done := make(chan error, 1)
			ch.Publish(args[1], parseData(args[2]), func(err error) { done <- err })
			ch.Attach(nil)

			select {
			case err := <-done:
				if err != nil {
					return fmt.Errorf("publish to %s: %w", args[0], err)
				}
			case <-ctx.Done():
				return ctx.Err()
			}

			a.log.Info().Str("channel", args[0]).Str("name", args[1]).Msg("published")
			return nil
		},
	}
}
