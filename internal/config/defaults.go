package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort          = 3004
	DefaultAllowedOrigin = "*"

	DefaultStoreBaseURL      = "http://localhost:3000"
	DefaultStoreTimeout      = 5 * time.Second
	DefaultStoreMaxRetries   = 3
	DefaultStoreRetryBackoff = 1 * time.Second

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultSendBuffer   = 256
	DefaultWriteTimeout = 5 * time.Second
	DefaultPingInterval = 15 * time.Second
	DefaultReadTimeout  = 60 * time.Second

	DefaultQueueSize = 1024
	DefaultWorkers   = 4

	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultBufferSize    = 1000

	DefaultHeartbeatInterval = 30 * time.Second
)

func (c *RelayConfig) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.AllowedOrigin == "" {
		c.Server.AllowedOrigin = DefaultAllowedOrigin
	}

	// Store defaults
	if c.Store.BaseURL == "" {
		c.Store.BaseURL = DefaultStoreBaseURL
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = DefaultStoreTimeout
	}
	if c.Store.MaxRetries == 0 {
		c.Store.MaxRetries = DefaultStoreMaxRetries
	}
	if c.Store.RetryBackoff == 0 {
		c.Store.RetryBackoff = DefaultStoreRetryBackoff
	}

	// Database defaults (only meaningful when the archive is enabled)
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Connections defaults
	if c.Connections.SendBuffer == 0 {
		c.Connections.SendBuffer = DefaultSendBuffer
	}
	if c.Connections.WriteTimeout == 0 {
		c.Connections.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connections.PingInterval == 0 {
		c.Connections.PingInterval = DefaultPingInterval
	}
	if c.Connections.ReadTimeout == 0 {
		c.Connections.ReadTimeout = DefaultReadTimeout
	}

	// Dispatcher defaults
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = DefaultQueueSize
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = DefaultWorkers
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
}
