package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
server:
  port: 4010
  allowed_origin: https://app.example.com
store:
  base_url: http://store.internal:3000
  timeout: 2s
heartbeat:
  interval: 10s
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 4010 {
		t.Errorf("Server.Port = %d, want 4010", cfg.Server.Port)
	}
	if cfg.Server.AllowedOrigin != "https://app.example.com" {
		t.Errorf("Server.AllowedOrigin = %q, want %q", cfg.Server.AllowedOrigin, "https://app.example.com")
	}
	if cfg.Store.BaseURL != "http://store.internal:3000" {
		t.Errorf("Store.BaseURL = %q, want %q", cfg.Store.BaseURL, "http://store.internal:3000")
	}
	if cfg.Store.Timeout != 2*time.Second {
		t.Errorf("Store.Timeout = %s, want 2s", cfg.Store.Timeout)
	}
	if cfg.Heartbeat.Interval != 10*time.Second {
		t.Errorf("Heartbeat.Interval = %s, want 10s", cfg.Heartbeat.Interval)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  host: localhost
  name: relay
  user: relay
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "{}\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Store.BaseURL != DefaultStoreBaseURL {
		t.Errorf("Store.BaseURL = %q, want %q", cfg.Store.BaseURL, DefaultStoreBaseURL)
	}
	if cfg.Store.MaxRetries != DefaultStoreMaxRetries {
		t.Errorf("Store.MaxRetries = %d, want %d", cfg.Store.MaxRetries, DefaultStoreMaxRetries)
	}
	if cfg.Dispatcher.QueueSize != DefaultQueueSize {
		t.Errorf("Dispatcher.QueueSize = %d, want %d", cfg.Dispatcher.QueueSize, DefaultQueueSize)
	}
	if cfg.Dispatcher.Workers != DefaultWorkers {
		t.Errorf("Dispatcher.Workers = %d, want %d", cfg.Dispatcher.Workers, DefaultWorkers)
	}
	if cfg.Heartbeat.Interval != DefaultHeartbeatInterval {
		t.Errorf("Heartbeat.Interval = %s, want %s", cfg.Heartbeat.Interval, DefaultHeartbeatInterval)
	}
	if cfg.Connections.SendBuffer != DefaultSendBuffer {
		t.Errorf("Connections.SendBuffer = %d, want %d", cfg.Connections.SendBuffer, DefaultSendBuffer)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
	if cfg.Database.Enabled() {
		t.Error("Default config should not enable the archive database")
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 70000

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 70000")
	}
}

func TestValidate_MissingStoreURL(t *testing.T) {
	cfg := Default()
	cfg.Store.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty store.base_url")
	}
}

func TestValidate_DatabasePartial(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "localhost"
	// name/user/password missing

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for partial database config")
	}
}

func TestValidate_PingVsReadTimeout(t *testing.T) {
	cfg := Default()
	cfg.Connections.PingInterval = 2 * time.Minute
	cfg.Connections.ReadTimeout = time.Minute

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when ping_interval >= read_timeout")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
