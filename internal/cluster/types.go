package cluster

import (
	"errors"
	"time"

	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
	"github.com/rickgao/discord-data/internal/shard"
)

// ErrNoRESTClient is returned when the config leaves gateway parameters
// unset and no REST client is available to resolve them.
var ErrNoRESTClient = errors.New("gateway resolution requires a rest client")

// ErrAlreadyStarted is returned by Start on a running manager.
var ErrAlreadyStarted = errors.New("cluster already started")

// Config describes the shard set.
type Config struct {
	// Token is the bot token.
	Token string

	// Intents selects the event groups to receive.
	Intents discord.Intents

	// GatewayURL overrides the websocket endpoint. Empty means resolve
	// via GET /gateway/bot.
	GatewayURL string

	// ShardCount is how many shards this process runs. Zero means use the
	// gateway's recommended count.
	ShardCount int

	// ShardTotal is the size of the full shard set, for splitting one bot
	// across processes. Zero means ShardCount.
	ShardTotal int

	// ShardOffset is the first shard index this process owns.
	ShardOffset int

	// IdentifyConcurrency is the bucket count for the identify queue.
	// Zero means use the gateway's max_concurrency.
	IdentifyConcurrency int

	// IdentifyLimit and IdentifyWindow rate limit identifies per bucket.
	IdentifyLimit  int
	IdentifyWindow time.Duration

	// HelloTimeout bounds the wait for the gateway's first frame.
	HelloTimeout time.Duration

	// LargeThreshold and Compression pass through to each shard.
	LargeThreshold int
	Compression    bool

	// EventBuffer sizes each shard's event channel.
	EventBuffer int

	// FanoutBuffer sizes listener channels on the registry.
	FanoutBuffer int
}

// ShardStats is a snapshot of one shard.
type ShardStats struct {
	ID      discord.ShardID
	Status  shard.Status
	Latency time.Duration
	Session string
}

// ManagerStats is a snapshot of the whole cluster.
type ManagerStats struct {
	ShardCount int
	Connected  int
	Shards     []ShardStats
	Fanout     fanout.Stats
}
