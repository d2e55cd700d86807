package discord

// Opcode identifies the kind of a gateway payload.
type Opcode int

const (
	OpcodeDispatch            Opcode = 0  // inbound: an event, with sequence number and name
	OpcodeHeartbeat           Opcode = 1  // bidirectional: liveness signal carrying the last seen sequence
	OpcodeIdentify            Opcode = 2  // outbound: start a brand-new session
	OpcodePresenceUpdate      Opcode = 3  // outbound: update bot presence
	OpcodeVoiceStateUpdate    Opcode = 4  // outbound: join/leave/move voice channels
	OpcodeResume              Opcode = 6  // outbound: reattach to a previous session
	OpcodeReconnect           Opcode = 7  // inbound: server requests an immediate reconnect
	OpcodeRequestGuildMembers Opcode = 8  // outbound: request member chunks for a guild
	OpcodeInvalidSession      Opcode = 9  // inbound: session invalidated; d indicates resumability
	OpcodeHello               Opcode = 10 // inbound: first frame after connect, carries heartbeat interval
	OpcodeHeartbeatACK        Opcode = 11 // inbound: acknowledges a heartbeat
)
