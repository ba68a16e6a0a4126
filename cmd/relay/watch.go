package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/relay/internal/watch"
	"github.com/bft-labs/relay/pkg/log"
)

func newWatchCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "watch <channel> <file>",
		Short: "Publish a file's contents on every change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown(client)

			ch := client.Channels().Get(args[0])
			ch.Attach(nil)

			w := watch.New(args[1], ch, watch.Config{
				Debounce:    a.cfg.Debounce,
				MessageName: name,
			}, log.NewZerologAdapterWithLogger(a.log))

			a.log.Info().Str("channel", args[0]).Str("file", args[1]).Msg("watching")
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("watch %s: %w", args[1], err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&a.cfg.Debounce, "debounce", a.cfg.Debounce, "delay after the last change before publishing")
	cmd.Flags().StringVar(&name, "name", watch.DefaultMessageName, "message name snapshots are published under")
	return cmd
}
