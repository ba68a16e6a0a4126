package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				ServiceURL:   "ws://file:1",
				APIKey:       "key",
				Loopback:     &trueVal,
				RetryInitial: "2s",
				ReconnectMax: "1m",
				Debounce:     "50ms",
			},
			changed: map[string]bool{},
			expected: Config{
				ServiceURL:   "ws://file:1",
				APIKey:       "key",
				Loopback:     true,
				RetryInitial: 2 * time.Second,
				ReconnectMax: time.Minute,
				Debounce:     50 * time.Millisecond,
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{APIKey: "file-key", Debounce: "1s"},
			changed:    map[string]bool{"api-key": true, "debounce": true},
			initial:    Config{APIKey: "flag-key", Debounce: time.Second / 2},
			expected:   Config{APIKey: "flag-key", Debounce: time.Second / 2},
		},
		{
			name:       "returns error for invalid duration",
			fileConfig: FileConfig{SuspendAfter: "eventually"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.TrimSpace(`
service_url = "ws://localhost:8080/v1"
api_key = "abc"
loopback = false
log_level = "debug"
request_timeout = "5s"
suspend_after = "90s"
`)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}
	if fc.ServiceURL != "ws://localhost:8080/v1" || fc.APIKey != "abc" || fc.LogLevel != "debug" {
		t.Errorf("FileConfig = %+v", fc)
	}
	if fc.Loopback == nil || *fc.Loopback {
		t.Errorf("Loopback = %v, want explicit false", fc.Loopback)
	}

	cfg := DefaultConfig()
	cfg.Loopback = true
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatal(err)
	}
	if cfg.Loopback || cfg.RequestTimeout != 5*time.Second || cfg.SuspendAfter != 90*time.Second {
		t.Errorf("applied config = %+v", cfg)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadFileConfig(missing) succeeded")
	}

	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("service_url = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig(malformed) succeeded")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) || FileExists(filepath.Join(dir, "absent")) {
		t.Error("FileExists reported wrong presence")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/relay")
	if got := DefaultConfigPath(); got != filepath.Join("/home/relay", ".relay", "config.toml") {
		t.Errorf("DefaultConfigPath() = %s", got)
	}
}
