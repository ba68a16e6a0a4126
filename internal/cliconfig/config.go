package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bft-labs/relay/pkg/realtime"
)

// DefaultServiceURL is the default realtime endpoint.
const DefaultServiceURL = "wss://realtime.relay.dev/v1"

// Config holds CLI configuration for relay.
type Config struct {
	ServiceURL string `validate:"omitempty,url"`
	APIKey     string
	ClientID   string `validate:"omitempty,max=128"`
	Loopback   bool

	LogLevel string `validate:"oneof=trace debug info warn error"`

	RequestTimeout   time.Duration `validate:"gt=0"`
	RetryInitial     time.Duration `validate:"gt=0"`
	RetryMax         time.Duration `validate:"gtefield=RetryInitial"`
	ReconnectInitial time.Duration `validate:"gt=0"`
	ReconnectMax     time.Duration `validate:"gtefield=ReconnectInitial"`
	SuspendAfter     time.Duration `validate:"gt=0"`

	// Debounce coalesces bursts of file events in relay watch.
	Debounce time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceURL:       DefaultServiceURL,
		LogLevel:         "info",
		RequestTimeout:   realtime.DefaultRequestTimeout,
		RetryInitial:     realtime.DefaultRetryInitial,
		RetryMax:         realtime.DefaultRetryMax,
		ReconnectInitial: realtime.DefaultReconnectInitial,
		ReconnectMax:     realtime.DefaultReconnectMax,
		SuspendAfter:     realtime.DefaultSuspendAfter,
		Debounce:         200 * time.Millisecond,
		APIKey:           os.Getenv("RELAY_API_KEY"),
	}
}

var validate = validator.New()

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.ServiceURL == "" && !c.Loopback {
		return fmt.Errorf("service-url is required (or --loopback)")
	}

	// Ensure no trailing slash
	c.ServiceURL = strings.TrimSuffix(c.ServiceURL, "/")

	if c.ClientID == "" {
		c.ClientID = "relay-cli-" + uuid.NewString()[:8]
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	if err := validate.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, formatValidationMessage(e))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// formatValidationMessage renders e in terms of the CLI flag name.
func formatValidationMessage(e validator.FieldError) string {
	flag := flagName(e.Field())
	switch e.Tag() {
	case "url":
		return fmt.Sprintf("%s must be a valid URL", flag)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", flag, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be positive", flag)
	case "gte":
		return fmt.Sprintf("%s must not be negative", flag)
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", flag, flagName(e.Param()))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", flag, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", flag, e.Tag())
	}
}

var flagNames = map[string]string{
	"ServiceURL":       "service-url",
	"APIKey":           "api-key",
	"ClientID":         "client-id",
	"LogLevel":         "log-level",
	"RequestTimeout":   "timeout",
	"RetryInitial":     "retry-initial",
	"RetryMax":         "retry-max",
	"ReconnectInitial": "reconnect-initial",
	"ReconnectMax":     "reconnect-max",
	"SuspendAfter":     "suspend-after",
	"Debounce":         "debounce",
}

func flagName(field string) string {
	if f, ok := flagNames[field]; ok {
		return f
	}
	return field
}

// Realtime converts the timing settings to a realtime.Config.
func (c Config) Realtime() realtime.Config {
	return realtime.Config{
		RequestTimeout:   c.RequestTimeout,
		RetryInitial:     c.RetryInitial,
		RetryMax:         c.RetryMax,
		ReconnectInitial: c.ReconnectInitial,
		ReconnectMax:     c.ReconnectMax,
		SuspendAfter:     c.SuspendAfter,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
