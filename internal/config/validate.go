package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Discord.Token == "" {
		return errors.New("discord.token is required")
	}
	if t := c.Discord.LargeThreshold; t != 0 && (t < 50 || t > 250) {
		return fmt.Errorf("discord.large_threshold must be between 50 and 250, got %d", t)
	}

	if c.Shards.Count < 0 {
		return errors.New("shards.count must be >= 0")
	}
	if c.Shards.Total < 0 {
		return errors.New("shards.total must be >= 0")
	}
	if c.Shards.Offset < 0 {
		return errors.New("shards.offset must be >= 0")
	}
	if c.Shards.Total > 0 && c.Shards.Offset+c.Shards.Count > c.Shards.Total {
		return fmt.Errorf("shards.offset (%d) + shards.count (%d) cannot exceed shards.total (%d)",
			c.Shards.Offset, c.Shards.Count, c.Shards.Total)
	}

	if c.Identify.Concurrency < 0 {
		return errors.New("identify.concurrency must be >= 0")
	}
	if c.Identify.Limit < 1 {
		return errors.New("identify.limit must be >= 1")
	}
	if c.Identify.Window <= 0 {
		return errors.New("identify.window must be > 0")
	}

	if !strings.HasPrefix(c.Gateway.URL, "wss://") && !strings.HasPrefix(c.Gateway.URL, "ws://") {
		return fmt.Errorf("gateway.url must be a ws:// or wss:// URL, got %q", c.Gateway.URL)
	}
	if c.Gateway.HelloTimeout <= 0 {
		return errors.New("gateway.hello_timeout must be > 0")
	}
	if c.Gateway.EventBuffer < 1 {
		return errors.New("gateway.event_buffer must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Archive.Enabled {
		if !c.Database.Enabled {
			return errors.New("archive.enabled requires database.enabled")
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
