package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"RELAY_SERVICE_URL":     "ws://env:9000",
				"RELAY_CLIENT_ID":       "env-client",
				"RELAY_LOG_LEVEL":       "debug",
				"RELAY_REQUEST_TIMEOUT": "3s",
				"RELAY_SUSPEND_AFTER":   "1m",
				"RELAY_LOOPBACK":        "true",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				ServiceURL:     "ws://env:9000",
				ClientID:       "env-client",
				LogLevel:       "debug",
				RequestTimeout: 3 * time.Second,
				SuspendAfter:   time.Minute,
				Loopback:       true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"RELAY_SERVICE_URL": "ws://env:9000",
				"RELAY_CLIENT_ID":   "env-client",
			},
			changed: map[string]bool{"service-url": true},
			initial: Config{ServiceURL: "ws://flag:1"},
			expected: Config{
				ServiceURL: "ws://flag:1",
				ClientID:   "env-client",
			},
		},
		{
			name: "returns error for invalid duration",
			envVars: map[string]string{
				"RELAY_RETRY_MAX": "not-a-duration",
			},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		ServiceURL:     "ws://file:1",
		ClientID:       "file-client",
		LogLevel:       "warn",
		Loopback:       &trueVal,
		RequestTimeout: "7s",
	}

	t.Setenv("RELAY_SERVICE_URL", "ws://env:2")
	t.Setenv("RELAY_CLIENT_ID", "env-client")

	// Simulate CLI flags
	changed := map[string]bool{"service-url": true}
	cfg := Config{ServiceURL: "ws://cli:3"}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.ServiceURL != "ws://cli:3" {
		t.Errorf("ServiceURL = %v, want ws://cli:3 (CLI should win)", cfg.ServiceURL)
	}
	if cfg.ClientID != "env-client" {
		t.Errorf("ClientID = %v, want env-client (env should override file)", cfg.ClientID)
	}
	if cfg.LogLevel != "warn" || !cfg.Loopback || cfg.RequestTimeout != 7*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
}
