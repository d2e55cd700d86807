package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultGatewayURL     = "wss://gateway.discord.gg"
	DefaultHelloTimeout   = 10 * time.Second
	DefaultEventBuffer    = 256
	DefaultIdentifyLimit  = 1
	DefaultIdentifyWindow = 5 * time.Second
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 4096
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

func (c *GathererConfig) applyDefaults() {
	// Instance defaults
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Identify defaults. Concurrency stays zero: it is resolved from the
	// gateway's session_start_limit at startup.
	if c.Identify.Limit == 0 {
		c.Identify.Limit = DefaultIdentifyLimit
	}
	if c.Identify.Window == 0 {
		c.Identify.Window = DefaultIdentifyWindow
	}

	// Gateway defaults
	if c.Gateway.URL == "" {
		c.Gateway.URL = DefaultGatewayURL
	}
	if c.Gateway.HelloTimeout == 0 {
		c.Gateway.HelloTimeout = DefaultHelloTimeout
	}
	if c.Gateway.EventBuffer == 0 {
		c.Gateway.EventBuffer = DefaultEventBuffer
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

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

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
