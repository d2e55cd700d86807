package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-gatherer
discord:
  token: Bot.Token.Here
  intents: 513
  compression: true
shards:
  count: 2
gateway:
  url: wss://gateway.example.test
database:
  enabled: true
  postgres:
    host: localhost
    port: 5432
    name: discord
    user: gatherer
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gatherer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gatherer")
	}
	if cfg.Discord.Token != "Bot.Token.Here" {
		t.Errorf("Discord.Token = %q, want %q", cfg.Discord.Token, "Bot.Token.Here")
	}
	if cfg.Discord.Intents != 513 {
		t.Errorf("Discord.Intents = %d, want 513", cfg.Discord.Intents)
	}
	if !cfg.Discord.Compression {
		t.Error("Discord.Compression = false, want true")
	}
	if cfg.Shards.Count != 2 {
		t.Errorf("Shards.Count = %d, want 2", cfg.Shards.Count)
	}
	if cfg.Gateway.URL != "wss://gateway.example.test" {
		t.Errorf("Gateway.URL = %q, want %q", cfg.Gateway.URL, "wss://gateway.example.test")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "secret123")

	yaml := `
discord:
  token: ${TEST_BOT_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Discord.Token != "secret123" {
		t.Errorf("Discord.Token = %q, want %q", cfg.Discord.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
discord:
  token: tok
database:
  enabled: true
  postgres:
    host: localhost
    name: discord
    user: gatherer
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Instance.ID == "" {
		t.Error("Instance.ID not generated")
	}
	if cfg.Gateway.URL != DefaultGatewayURL {
		t.Errorf("Gateway.URL = %q, want default %q", cfg.Gateway.URL, DefaultGatewayURL)
	}
	if cfg.Gateway.HelloTimeout != DefaultHelloTimeout {
		t.Errorf("Gateway.HelloTimeout = %v, want default %v", cfg.Gateway.HelloTimeout, DefaultHelloTimeout)
	}
	if cfg.Identify.Limit != DefaultIdentifyLimit {
		t.Errorf("Identify.Limit = %d, want default %d", cfg.Identify.Limit, DefaultIdentifyLimit)
	}
	if cfg.Identify.Window != DefaultIdentifyWindow {
		t.Errorf("Identify.Window = %v, want default %v", cfg.Identify.Window, DefaultIdentifyWindow)
	}
	if cfg.Identify.Concurrency != 0 {
		t.Errorf("Identify.Concurrency = %d, want 0 (resolved at startup)", cfg.Identify.Concurrency)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Postgres.MaxConns = %d, want default %d", cfg.Database.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Archive.BatchSize != DefaultBatchSize {
		t.Errorf("Archive.BatchSize = %d, want default %d", cfg.Archive.BatchSize, DefaultBatchSize)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestValidate(t *testing.T) {
	valid := GathererConfig{
		Instance: InstanceConfig{ID: "test"},
		Discord:  DiscordConfig{Token: "tok"},
		Identify: IdentifyConfig{Limit: 1, Window: 5 * time.Second},
		Gateway: GatewayConfig{
			URL:          "wss://gateway.discord.gg",
			HelloTimeout: 10 * time.Second,
			EventBuffer:  256,
		},
		Metrics: MetricsConfig{Port: 9090, Path: "/metrics"},
	}

	tests := []struct {
		name    string
		mutate  func(*GathererConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *GathererConfig) {},
			wantErr: "",
		},
		{
			name:    "missing token",
			mutate:  func(c *GathererConfig) { c.Discord.Token = "" },
			wantErr: "discord.token is required",
		},
		{
			name:    "large threshold out of range",
			mutate:  func(c *GathererConfig) { c.Discord.LargeThreshold = 20 },
			wantErr: "discord.large_threshold must be between 50 and 250, got 20",
		},
		{
			name: "shard slice exceeds total",
			mutate: func(c *GathererConfig) {
				c.Shards = ShardsConfig{Count: 4, Total: 4, Offset: 2}
			},
			wantErr: "shards.offset (2) + shards.count (4) cannot exceed shards.total (4)",
		},
		{
			name:    "bad gateway url",
			mutate:  func(c *GathererConfig) { c.Gateway.URL = "https://gateway.discord.gg" },
			wantErr: `gateway.url must be a ws:// or wss:// URL, got "https://gateway.discord.gg"`,
		},
		{
			name:    "database enabled without host",
			mutate:  func(c *GathererConfig) { c.Database.Enabled = true },
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *GathererConfig) {
				c.Database.Enabled = true
				c.Database.Postgres = DBConfig{
					Host: "localhost", Name: "db", User: "user", Password: "pass",
					MaxConns: 5, MinConns: 10,
				}
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "archive without database",
			mutate: func(c *GathererConfig) {
				c.Archive = ArchiveConfig{Enabled: true, BatchSize: 100, BufferSize: 100}
			},
			wantErr: "archive.enabled requires database.enabled",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *GathererConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
