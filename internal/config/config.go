package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Discord  DiscordConfig  `yaml:"discord"`
	Shards   ShardsConfig   `yaml:"shards"`
	Identify IdentifyConfig `yaml:"identify"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DiscordConfig holds bot credentials and identify parameters.
type DiscordConfig struct {
	Token          string `yaml:"token"`
	Intents        uint64 `yaml:"intents"`         // raw gateway intents bitfield
	LargeThreshold int    `yaml:"large_threshold"` // 50-250, 0 omits the field
	Compression    bool   `yaml:"compression"`     // zlib-stream transport compression
}

// ShardsConfig describes which slice of the shard set this instance runs.
// A zero count uses the gateway's recommended shard count; a zero total
// means the instance runs the whole set itself.
type ShardsConfig struct {
	Count  int `yaml:"count"`
	Total  int `yaml:"total"`
	Offset int `yaml:"offset"`
}

// IdentifyConfig holds the session start rate limit. A zero concurrency is
// resolved from the gateway's session_start_limit at startup.
type IdentifyConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Limit       int           `yaml:"limit"`
	Window      time.Duration `yaml:"window"`
}

// GatewayConfig holds connection-level settings.
type GatewayConfig struct {
	URL          string        `yaml:"url"`
	HelloTimeout time.Duration `yaml:"hello_timeout"`
	EventBuffer  int           `yaml:"event_buffer"`
}

// DatabaseConfig holds the PostgreSQL connection for sessions and archived
// events.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
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

// ArchiveConfig holds dispatch event archiver settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
