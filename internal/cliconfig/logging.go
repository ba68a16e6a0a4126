package cliconfig

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/relay/pkg/transport"
)

// Logger returns a console logger on stderr at level. Unknown levels fall
// back to info.
func Logger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

// Metadata builds the handshake metadata for this CLI process.
func (c Config) Metadata(agent string) transport.Metadata {
	return transport.Metadata{
		ClientID: c.ClientID,
		Hostname: hostname(),
		OSArch:   runtime.GOOS + "/" + runtime.GOARCH,
		APIKey:   c.APIKey,
		Agent:    agent,
	}
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
