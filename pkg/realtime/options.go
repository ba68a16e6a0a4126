package realtime

import "github.com/bft-labs/relay/pkg/log"

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	logger       log.Logger
	eventHandler EventHandler
	newID        func() string
}

// WithLogger sets a logger for the client and its channels.
// If not provided, nothing is logged.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEventHandler sets a handler for client events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.eventHandler = h
	}
}

// WithIDGenerator overrides how channels generate envelope ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newID = fn
	}
}
