package discord

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload is the envelope every gateway frame arrives and departs in.
type Payload struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  uint64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// ParsePayload decodes a raw frame into the payload envelope. The d field
// stays raw; callers decode it once the opcode (and event name) are known.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("parse gateway payload: %w", err)
	}
	return p, nil
}

// MarshalPayload encodes an outbound frame with the given opcode and body.
func MarshalPayload(op Opcode, d any) ([]byte, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal op %d body: %w", op, err)
	}
	return json.Marshal(Payload{Op: op, D: body})
}

// Hello is the body of the first frame on every fresh connection.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// Interval returns the heartbeat interval as a duration.
func (h Hello) Interval() time.Duration {
	return time.Duration(h.HeartbeatInterval) * time.Millisecond
}

// Ready is the dispatch body confirming a successful identify.
type Ready struct {
	Version          int     `json:"v"`
	SessionID        string  `json:"session_id"`
	ResumeGatewayURL string  `json:"resume_gateway_url"`
	Shard            ShardID `json:"shard"`
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify is the body that starts a brand-new session. Sending one consumes
// a slot from the global session start limit.
type Identify struct {
	Token          string             `json:"token"`
	Properties     IdentifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          ShardID            `json:"shard"`
	Intents        Intents            `json:"intents"`
}

// Resume reattaches to a previous session. Resumes are not counted against
// the session start limit.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  uint64 `json:"seq"`
}

// HeartbeatBody returns the d value for an outbound heartbeat: the last seen
// sequence number, or JSON null before the first dispatch.
func HeartbeatBody(seq uint64) any {
	if seq == 0 {
		return nil
	}
	return seq
}

// ParseInvalidSession decodes the boolean body of an Invalid Session frame,
// which reports whether the session may still be resumed.
func ParseInvalidSession(d json.RawMessage) bool {
	var resumable bool
	// A missing or malformed body means the session is gone for good.
	_ = json.Unmarshal(d, &resumable)
	return resumable
}

// RequestGuildMembers asks the gateway to stream member chunks for a guild.
type RequestGuildMembers struct {
	GuildID   string   `json:"guild_id"`
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// NewGuildMemberRequest builds a member request with a unique nonce so the
// resulting GUILD_MEMBERS_CHUNK dispatches can be correlated to it.
func NewGuildMemberRequest(guildID, query string, limit int) RequestGuildMembers {
	return RequestGuildMembers{
		GuildID: guildID,
		Query:   query,
		Limit:   limit,
		Nonce:   uuid.NewString(),
	}
}

// Activity is the minimal presence activity shape.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

// UpdatePresence is the body of a presence update command.
type UpdatePresence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// UpdateVoiceState is the body of a voice state update command. A nil
// ChannelID disconnects from voice.
type UpdateVoiceState struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}
