package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

var configEnv = []string{"PORT", "SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_JWT_SECRET", "MQTT_BROKER"}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	for _, path := range []string{"", "/nonexistent/config.yaml"} {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", path, err)
		}
		if diff := cmp.Diff(Default(), cfg); diff != "" {
			t.Errorf("Load(%q) mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 9090
  shutdown_timeout: 10s
storage:
  driver: memory
auth:
  url: https://project.supabase.co
  leeway: 30s
contact:
  driver: mqtt
  broker: tcp://broker.local:1883
  qos: 1
logging:
  level: debug
  pretty: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	expected := Default()
	expected.Server.Port = 9090
	expected.Server.ShutdownTimeout = 10 * time.Second
	expected.Storage.Driver = StorageMemory
	expected.Auth.URL = "https://project.supabase.co"
	expected.Auth.Leeway = 30 * time.Second
	expected.Contact.Driver = ContactMQTT
	expected.Contact.Broker = "tcp://broker.local:1883"
	expected.Contact.QoS = 1
	expected.Logging = LoggingConfig{Level: "debug", Pretty: true}

	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("MQTT_BROKER", "tcp://env-broker:1883")

	path := writeConfig(t, "server:\n  port: 9090\nauth:\n  url: https://file.supabase.co\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
	got := []string{cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.JWTSecret, cfg.Contact.Broker}
	want := []string{"https://env.supabase.co", "anon", "secret", "tcp://env-broker:1883"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("env overrides mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Auth.Enabled() {
		t.Error("expected auth to be enabled with a jwt secret")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		port string
	}{
		{name: "Malformed yaml", yaml: "server: [unclosed"},
		{name: "Unknown storage driver", yaml: "storage:\n  driver: redis\n"},
		{name: "Empty storage key", yaml: "storage:\n  key: \"\"\n"},
		{name: "Unknown contact driver", yaml: "contact:\n  driver: sms\n"},
		{name: "Mqtt without broker", yaml: "contact:\n  driver: mqtt\n"},
		{name: "QoS out of range", yaml: "contact:\n  qos: 3\n"},
		{name: "Port out of range", yaml: "server:\n  port: 70000\n"},
		{name: "Bad log level", yaml: "logging:\n  level: loud\n"},
		{name: "Bad PORT env", yaml: "", port: "eighty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}

			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	original := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(original) })

	tests := []struct {
		level    string
		expected zerolog.Level
	}{
		{level: "debug", expected: zerolog.DebugLevel},
		{level: "warn", expected: zerolog.WarnLevel},
		{level: "", expected: zerolog.InfoLevel},
		{level: "nonsense", expected: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			LoggingConfig{Level: tt.level}.SetupLogging()
			if got := zerolog.GlobalLevel(); got != tt.expected {
				t.Errorf("GlobalLevel() = %v, want %v", got, tt.expected)
			}
		})
	}
}
