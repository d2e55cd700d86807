package discord

import (
	"encoding/json"
	"time"
)

// EventType classifies a decoded event. Values below eventLifecycleEnd are
// pseudo-events emitted by the shard itself on state transitions; the rest
// map to gateway dispatch names, with EventUnknown as the visible fallback
// for dispatches this package does not know about.
type EventType int

const (
	EventUnknown EventType = iota

	// Lifecycle pseudo-events (never sent by the server).
	EventConnecting
	EventIdentifying
	EventResuming
	EventConnected
	EventDisconnected

	// Session dispatches.
	EventReady
	EventResumed

	// Message dispatches.
	EventMessageCreate
	EventMessageUpdate
	EventMessageDelete
	EventMessageDeleteBulk
	EventMessageReactionAdd
	EventMessageReactionRemove

	// Guild dispatches.
	EventGuildCreate
	EventGuildUpdate
	EventGuildDelete
	EventGuildBanAdd
	EventGuildBanRemove
	EventGuildMemberAdd
	EventGuildMemberUpdate
	EventGuildMemberRemove
	EventGuildMembersChunk
	EventGuildRoleCreate
	EventGuildRoleUpdate
	EventGuildRoleDelete

	// Channel and thread dispatches.
	EventChannelCreate
	EventChannelUpdate
	EventChannelDelete
	EventChannelPinsUpdate
	EventThreadCreate
	EventThreadUpdate
	EventThreadDelete

	// Everything else.
	EventInteractionCreate
	EventPresenceUpdate
	EventTypingStart
	EventVoiceStateUpdate
	EventVoiceServerUpdate
	EventInviteCreate
	EventInviteDelete

	eventTypeCount // sentinel, keep last (must stay <= 64 for EventMask)
)

// eventNames maps dispatch names from the wire to event types.
var eventNames = map[string]EventType{
	"READY":                   EventReady,
	"RESUMED":                 EventResumed,
	"MESSAGE_CREATE":          EventMessageCreate,
	"MESSAGE_UPDATE":          EventMessageUpdate,
	"MESSAGE_DELETE":          EventMessageDelete,
	"MESSAGE_DELETE_BULK":     EventMessageDeleteBulk,
	"MESSAGE_REACTION_ADD":    EventMessageReactionAdd,
	"MESSAGE_REACTION_REMOVE": EventMessageReactionRemove,
	"GUILD_CREATE":            EventGuildCreate,
	"GUILD_UPDATE":            EventGuildUpdate,
	"GUILD_DELETE":            EventGuildDelete,
	"GUILD_BAN_ADD":           EventGuildBanAdd,
	"GUILD_BAN_REMOVE":        EventGuildBanRemove,
	"GUILD_MEMBER_ADD":        EventGuildMemberAdd,
	"GUILD_MEMBER_UPDATE":     EventGuildMemberUpdate,
	"GUILD_MEMBER_REMOVE":     EventGuildMemberRemove,
	"GUILD_MEMBERS_CHUNK":     EventGuildMembersChunk,
	"GUILD_ROLE_CREATE":       EventGuildRoleCreate,
	"GUILD_ROLE_UPDATE":       EventGuildRoleUpdate,
	"GUILD_ROLE_DELETE":       EventGuildRoleDelete,
	"CHANNEL_CREATE":          EventChannelCreate,
	"CHANNEL_UPDATE":          EventChannelUpdate,
	"CHANNEL_DELETE":          EventChannelDelete,
	"CHANNEL_PINS_UPDATE":     EventChannelPinsUpdate,
	"THREAD_CREATE":           EventThreadCreate,
	"THREAD_UPDATE":           EventThreadUpdate,
	"THREAD_DELETE":           EventThreadDelete,
	"INTERACTION_CREATE":      EventInteractionCreate,
	"PRESENCE_UPDATE":         EventPresenceUpdate,
	"TYPING_START":            EventTypingStart,
	"VOICE_STATE_UPDATE":      EventVoiceStateUpdate,
	"VOICE_SERVER_UPDATE":     EventVoiceServerUpdate,
	"INVITE_CREATE":           EventInviteCreate,
	"INVITE_DELETE":           EventInviteDelete,
}

// eventTypeNames is the reverse mapping, used for logs and metric labels.
var eventTypeNames = func() map[EventType]string {
	names := map[EventType]string{
		EventUnknown:      "UNKNOWN",
		EventConnecting:   "CONNECTING",
		EventIdentifying:  "IDENTIFYING",
		EventResuming:     "RESUMING",
		EventConnected:    "CONNECTED",
		EventDisconnected: "DISCONNECTED",
	}
	for name, t := range eventNames {
		names[t] = name
	}
	return names
}()

// ClassifyDispatch maps a dispatch name to its event type. Unrecognized
// names classify as EventUnknown; the raw name travels on the Event so the
// caller still sees exactly what arrived.
func ClassifyDispatch(name string) EventType {
	if t, ok := eventNames[name]; ok {
		return t
	}
	return EventUnknown
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsLifecycle reports whether the type is a shard-emitted pseudo-event.
func (t EventType) IsLifecycle() bool {
	return t >= EventConnecting && t <= EventDisconnected
}

// EventMask is a bitset over event types, used by fan-out subscriptions.
type EventMask uint64

// MaskAll matches every event type, including lifecycle pseudo-events.
const MaskAll = ^EventMask(0)

// MaskOf builds a mask matching exactly the given types.
func MaskOf(types ...EventType) EventMask {
	var m EventMask
	for _, t := range types {
		m |= 1 << uint(t)
	}
	return m
}

// MaskLifecycle matches the shard lifecycle pseudo-events.
var MaskLifecycle = MaskOf(EventConnecting, EventIdentifying, EventResuming, EventConnected, EventDisconnected)

// MaskDispatch matches every server-sent dispatch, known or unknown, but no
// lifecycle pseudo-events.
var MaskDispatch = MaskAll &^ MaskLifecycle

// Contains reports whether the mask matches the given type.
func (m EventMask) Contains(t EventType) bool {
	return m&(1<<uint(t)) != 0
}

// Event is one decoded unit of the gateway stream: either a server dispatch
// or a lifecycle pseudo-event describing a shard state transition.
type Event struct {
	Type       EventType
	Name       string          // raw dispatch name; empty for lifecycle events
	Sequence   uint64          // gateway sequence number; 0 when absent
	Shard      ShardID         // originating shard
	Data       json.RawMessage // dispatch payload; nil for lifecycle events
	ReceivedAt time.Time       // when the shard read the event off the socket
}
