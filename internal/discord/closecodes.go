package discord

import "fmt"

// CloseCode is a gateway websocket close code.
type CloseCode int

const (
	CloseUnknownError         CloseCode = 4000
	CloseUnknownOpcode        CloseCode = 4001
	CloseDecodeError          CloseCode = 4002
	CloseNotAuthenticated     CloseCode = 4003
	CloseAuthenticationFailed CloseCode = 4004
	CloseAlreadyAuthenticated CloseCode = 4005
	CloseInvalidSequence      CloseCode = 4007
	CloseRateLimited          CloseCode = 4008
	CloseSessionTimedOut      CloseCode = 4009
	CloseInvalidShard         CloseCode = 4010
	CloseShardingRequired     CloseCode = 4011
	CloseInvalidAPIVersion    CloseCode = 4012
	CloseInvalidIntents       CloseCode = 4013
	CloseDisallowedIntents    CloseCode = 4014
)

// IsFatal reports whether reconnecting after this close code is pointless:
// the server will reject every subsequent attempt with the same credentials
// and configuration. A fatal close shuts the shard down permanently.
func (c CloseCode) IsFatal() bool {
	switch c {
	case CloseAuthenticationFailed,
		CloseInvalidShard,
		CloseShardingRequired,
		CloseInvalidAPIVersion,
		CloseInvalidIntents,
		CloseDisallowedIntents:
		return true
	}
	return false
}

// CanResume reports whether the current session survives this close code.
// Unknown codes default to resumable; the fixed non-resumable set covers
// codes where the server has discarded the session (or will never accept
// another attempt at all).
func (c CloseCode) CanResume() bool {
	switch c {
	case CloseInvalidSequence, CloseSessionTimedOut:
		return false
	}
	return !c.IsFatal()
}

// CloseError is a close frame received from the gateway.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("gateway closed connection: code %d", e.Code)
	}
	return fmt.Sprintf("gateway closed connection: code %d: %s", e.Code, e.Reason)
}
