package shard

import (
	"errors"
	"time"

	"github.com/rickgao/discord-data/internal/discord"
)

// Errors
var (
	ErrNotConnected     = errors.New("shard not connected")
	ErrAlreadyStarted   = errors.New("shard already started")
	ErrExpectedHello    = errors.New("expected hello frame")
	ErrHeartbeatTimeout = errors.New("heartbeat not acknowledged")
)

// Internal disconnect causes; never surfaced to callers.
var (
	errReconnect      = errors.New("gateway requested reconnect")
	errInvalidSession = errors.New("gateway invalidated session")
)

// Status is the shard's position in its connection lifecycle.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusWaitingForHello
	StatusIdentifying
	StatusResuming
	StatusConnected
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusWaitingForHello:
		return "waiting_for_hello"
	case StatusIdentifying:
		return "identifying"
	case StatusResuming:
		return "resuming"
	case StatusConnected:
		return "connected"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config configures a single shard.
type Config struct {
	ID      discord.ShardID
	Token   string
	Intents discord.Intents

	GatewayURL   string        // base URL, without query parameters
	HelloTimeout time.Duration // max wait for the Hello frame after dialing

	LargeThreshold int  // member count threshold in identify; 0 omits it
	Compression    bool // request zlib-stream transport compression

	EventBuffer int // capacity of the Events channel
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GatewayURL:   "wss://gateway.discord.gg",
		HelloTimeout: 10 * time.Second,
		EventBuffer:  256,
	}
}
