package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	Database    DBConfig          `yaml:"database"`
	Connections ConnectionsConfig `yaml:"connections"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	AllowedOrigin string `yaml:"allowed_origin"` // "*" allows any origin
}

// StoreConfig holds the external message store settings.
type StoreConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DBConfig holds the optional Postgres archive connection.
// The archive is disabled when Host is empty.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether the archive database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// ConnectionsConfig holds per-connection WebSocket settings.
type ConnectionsConfig struct {
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// DispatcherConfig holds persistence dispatcher settings.
type DispatcherConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// ArchiveConfig holds batch archive writer settings.
type ArchiveConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HeartbeatConfig holds liveness monitor settings.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}
