package queue

import (
	"errors"
	"time"
)

// ErrQueueClosed is returned by Wait when the queue has been shut down.
var ErrQueueClosed = errors.New("identify queue closed")

// Config holds the identify rate limit parameters, normally taken from the
// session_start_limit object returned by the gateway bot endpoint.
type Config struct {
	// Concurrency is the number of identify buckets (max_concurrency).
	Concurrency int

	// Limit is the number of identifies each bucket may send per Window.
	Limit int

	// Window is the rate limit period shared by all buckets.
	Window time.Duration
}

// DefaultConfig matches the limits of an unverified bot: one identify every
// five seconds, one bucket.
func DefaultConfig() Config {
	return Config{
		Concurrency: 1,
		Limit:       1,
		Window:      5 * time.Second,
	}
}

// unlimited reports whether the config disables throttling.
func (c Config) unlimited() bool {
	return c.Concurrency <= 0 || c.Limit <= 0 || c.Window <= 0
}
