package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ServiceURL       string `toml:"service_url"`
	APIKey           string `toml:"api_key"`
	ClientID         string `toml:"client_id"`
	Loopback         *bool  `toml:"loopback"`
	LogLevel         string `toml:"log_level"`
	RequestTimeout   string `toml:"request_timeout"`
	RetryInitial     string `toml:"retry_initial"`
	RetryMax         string `toml:"retry_max"`
	ReconnectInitial string `toml:"reconnect_initial"`
	ReconnectMax     string `toml:"reconnect_max"`
	SuspendAfter     string `toml:"suspend_after"`
	Debounce         string `toml:"debounce"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.relay/config.toml, or "" when the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".relay", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("api-key", fc.APIKey, &cfg.APIKey)
	s.setString("client-id", fc.ClientID, &cfg.ClientID)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setBool("loopback", fc.Loopback, &cfg.Loopback)

	return applyDurations(s, cfg, durationSources{
		RequestTimeout:   fc.RequestTimeout,
		RetryInitial:     fc.RetryInitial,
		RetryMax:         fc.RetryMax,
		ReconnectInitial: fc.ReconnectInitial,
		ReconnectMax:     fc.ReconnectMax,
		SuspendAfter:     fc.SuspendAfter,
		Debounce:         fc.Debounce,
	})
}

// durationSources holds unparsed duration settings from one source.
type durationSources struct {
	RequestTimeout   string
	RetryInitial     string
	RetryMax         string
	ReconnectInitial string
	ReconnectMax     string
	SuspendAfter     string
	Debounce         string
}

func applyDurations(s *configSetter, cfg *Config, d durationSources) error {
	fields := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"timeout", d.RequestTimeout, &cfg.RequestTimeout},
		{"retry-initial", d.RetryInitial, &cfg.RetryInitial},
		{"retry-max", d.RetryMax, &cfg.RetryMax},
		{"reconnect-initial", d.ReconnectInitial, &cfg.ReconnectInitial},
		{"reconnect-max", d.ReconnectMax, &cfg.ReconnectMax},
		{"suspend-after", d.SuspendAfter, &cfg.SuspendAfter},
		{"debounce", d.Debounce, &cfg.Debounce},
	}
	for _, f := range fields {
		if err := s.setDuration(f.flag, f.value, f.dst); err != nil {
			return err
		}
	}
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
