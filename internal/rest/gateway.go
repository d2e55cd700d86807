package rest

import (
	"context"
	"time"
)

// Gateway is the response of GET /gateway.
type Gateway struct {
	URL string `json:"url"`
}

// SessionStartLimit describes how many identifies the bot has left and how
// many it may run concurrently.
type SessionStartLimit struct {
	Total          int   `json:"total"`
	Remaining      int   `json:"remaining"`
	ResetAfter     int64 `json:"reset_after"` // milliseconds
	MaxConcurrency int   `json:"max_concurrency"`
}

// ResetIn returns the reset delay as a duration.
func (l SessionStartLimit) ResetIn() time.Duration {
	return time.Duration(l.ResetAfter) * time.Millisecond
}

// GatewayBot is the response of GET /gateway/bot.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GetGateway fetches the public gateway URL.
func (c *Client) GetGateway(ctx context.Context) (*Gateway, error) {
	var g Gateway
	if err := c.get(ctx, "/gateway", nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGatewayBot fetches the gateway URL, the recommended shard count, and
// the session start limit for the configured bot.
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var gb GatewayBot
	if err := c.get(ctx, "/gateway/bot", nil, &gb); err != nil {
		return nil, err
	}
	return &gb, nil
}
