package realtime

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultRequestTimeout   = 10 * time.Second
	DefaultRetryInitial     = 1 * time.Second
	DefaultRetryMax         = 30 * time.Second
	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 15 * time.Second
	DefaultSuspendAfter     = 2 * time.Minute
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("realtime: invalid config")

// Config holds client timing.
// Use DefaultConfig() or call SetDefaults() before use.
type Config struct {
	// RequestTimeout bounds each attach, detach and send.
	RequestTimeout time.Duration

	// RetryInitial and RetryMax bound the delay between re-attach attempts
	// of a suspended channel.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// ReconnectInitial and ReconnectMax bound the delay between redials
	// after the connection drops.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// SuspendAfter is how long the connection may stay disconnected before
	// channels are suspended.
	SuspendAfter time.Duration
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero fields with defaults.
func (c *Config) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryInitial == 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax == 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.ReconnectInitial == 0 {
		c.ReconnectInitial = DefaultReconnectInitial
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
	if c.SuspendAfter == 0 {
		c.SuspendAfter = DefaultSuspendAfter
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.RequestTimeout < 0:
		return fmt.Errorf("%w: request timeout %s is negative", ErrInvalidConfig, c.RequestTimeout)
	case c.RetryMax < c.RetryInitial:
		return fmt.Errorf("%w: retry max %s below retry initial %s", ErrInvalidConfig, c.RetryMax, c.RetryInitial)
	case c.ReconnectMax < c.ReconnectInitial:
		return fmt.Errorf("%w: reconnect max %s below reconnect initial %s", ErrInvalidConfig, c.ReconnectMax, c.ReconnectInitial)
	case c.SuspendAfter < 0:
		return fmt.Errorf("%w: suspend after %s is negative", ErrInvalidConfig, c.SuspendAfter)
	}
	return nil
}
