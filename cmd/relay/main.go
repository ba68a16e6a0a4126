package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/relay/internal/cliconfig"
	"github.com/bft-labs/relay/pkg/channel"
	"github.com/bft-labs/relay/pkg/log"
	"github.com/bft-labs/relay/pkg/realtime"
	"github.com/bft-labs/relay/pkg/transport"
	"github.com/bft-labs/relay/pkg/transport/loopback"
	"github.com/bft-labs/relay/pkg/transport/ws"
)

const longHelp = `Publish to and subscribe from relay pub/sub channels.

Messages published before a channel is attached are queued and sent in a
single envelope once the attach completes. Configure via file
($HOME/.relay/config.toml), RELAY_* environment variables, or flags.`

var exampleUsage = strings.TrimSpace(`
  relay publish prices tick '{"symbol":"ABC","price":12.5}'
  relay subscribe prices tick trade
  relay watch status ./status.json --debounce 500ms
  relay --loopback publish demo hello world
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries state shared by every subcommand.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

func main() {
	a := &app{cfg: cliconfig.DefaultConfig()}
	a.log = cliconfig.Logger(a.cfg.LogLevel)

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Publish to and subscribe from relay pub/sub channels",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.relay/config.toml)")
	flags.StringVar(&a.cfg.ServiceURL, "service-url", a.cfg.ServiceURL, "realtime service WebSocket URL")
	flags.StringVar(&a.cfg.APIKey, "api-key", a.cfg.APIKey, "API key for authentication")
	flags.StringVar(&a.cfg.ClientID, "client-id", a.cfg.ClientID, "client identifier (random when empty)")
	flags.BoolVar(&a.cfg.Loopback, "loopback", a.cfg.Loopback, "use an in-process broker instead of the service")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: trace, debug, info, warn, error")
	flags.DurationVar(&a.cfg.RequestTimeout, "timeout", a.cfg.RequestTimeout, "timeout for attach, detach and publish requests")
	flags.DurationVar(&a.cfg.RetryInitial, "retry-initial", a.cfg.RetryInitial, "first delay between channel re-attach attempts")
	flags.DurationVar(&a.cfg.RetryMax, "retry-max", a.cfg.RetryMax, "maximum delay between channel re-attach attempts")
	flags.DurationVar(&a.cfg.ReconnectInitial, "reconnect-initial", a.cfg.ReconnectInitial, "first delay between reconnect attempts")
	flags.DurationVar(&a.cfg.ReconnectMax, "reconnect-max", a.cfg.ReconnectMax, "maximum delay between reconnect attempts")
	flags.DurationVar(&a.cfg.SuspendAfter, "suspend-after", a.cfg.SuspendAfter, "how long the connection may stay down before channels suspend")

	root.AddCommand(
		newPublishCmd(a),
		newSubscribeCmd(a),
		newWatchCmd(a),
	)

	if err := root.Execute(); err != nil {
		a.log.Error().Err(err).Msg("relay")
		os.Exit(1)
	}
}

// loadConfig layers file, environment and flags, flags winning.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.log = cliconfig.Logger(a.cfg.LogLevel)

	logCfg := a.cfg
	if len(logCfg.APIKey) > 0 {
		logCfg.APIKey = "*****"
	}
	a.log.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

// connect builds the transport and client and waits for the connection.
func (a *app) connect(ctx context.Context) (*realtime.Client, error) {
	logger := log.NewZerologAdapterWithLogger(a.log)

	var t transport.Transport
	if a.cfg.Loopback {
		t = loopback.NewBroker().Dial(loopback.WithLogger(logger))
	} else {
		t = ws.New(a.cfg.ServiceURL,
			ws.WithLogger(logger),
			ws.WithMetadata(a.cfg.Metadata("relay-cli/"+getVersion())),
		)
	}

	client, err := realtime.New(t, a.cfg.Realtime(),
		realtime.WithLogger(logger),
		realtime.WithEventHandler(&cliEvents{log: a.log}),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, err
	}
	return client, nil
}

// shutdown closes client, bounded so a stuck transport cannot hang exit.
func (a *app) shutdown(client *realtime.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		a.log.Warn().Err(err).Msg("close client")
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// attach attaches ch and waits for the outcome.
func attach(ctx context.Context, ch *channel.Channel) error {
	done := make(chan error, 1)
	ch.Attach(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseData decodes arg as JSON, falling back to the raw string.
func parseData(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	return arg
}

// cliEvents logs client events.
type cliEvents struct {
	realtime.BaseEventHandler

	log zerolog.Logger
}

func (e *cliEvents) OnConnectionStateChange(c realtime.Change) {
	ev := e.log.Debug()
	if c.Err != nil {
		ev = e.log.Warn().Err(c.Err)
	}
	ev.Str("from", c.Previous.String()).Str("to", c.Current.String()).Msg("connection state")
}

func (e *cliEvents) OnChannelStateChange(name string, c channel.Change) {
	ev := e.log.Debug()
	if c.Err != nil {
		ev = e.log.Warn().Err(c.Err)
	}
	ev.Str("channel", name).Str("from", c.Previous.String()).Str("to", c.Current.String()).Msg("channel state")
}

func (e *cliEvents) OnError(err error) {
	e.log.Error().Err(err).Msg("relay error")
}
