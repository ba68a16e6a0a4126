package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (RELAY_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", os.Getenv("RELAY_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("api-key", os.Getenv("RELAY_API_KEY"), &cfg.APIKey)
	s.setString("client-id", os.Getenv("RELAY_CLIENT_ID"), &cfg.ClientID)
	s.setString("log-level", os.Getenv("RELAY_LOG_LEVEL"), &cfg.LogLevel)
	s.setBoolFromString("loopback", os.Getenv("RELAY_LOOPBACK"), &cfg.Loopback)

	return applyDurations(s, cfg, durationSources{
		RequestTimeout:   os.Getenv("RELAY_REQUEST_TIMEOUT"),
		RetryInitial:     os.Getenv("RELAY_RETRY_INITIAL"),
		RetryMax:         os.Getenv("RELAY_RETRY_MAX"),
		ReconnectInitial: os.Getenv("RELAY_RECONNECT_INITIAL"),
		ReconnectMax:     os.Getenv("RELAY_RECONNECT_MAX"),
		SuspendAfter:     os.Getenv("RELAY_SUSPEND_AFTER"),
		Debounce:         os.Getenv("RELAY_DEBOUNCE"),
	})
}
