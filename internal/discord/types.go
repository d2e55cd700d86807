package discord

import (
	"encoding/json"
	"fmt"
)

// ShardID identifies a connection's position within a shard set. It is
// immutable for the connection's lifetime and marshals as the two-element
// array the gateway expects in identify payloads.
type ShardID struct {
	Index int
	Total int
}

func (s ShardID) String() string {
	return fmt.Sprintf("%d/%d", s.Index, s.Total)
}

// MarshalJSON encodes the shard id as [index, total].
func (s ShardID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Index, s.Total})
}

// UnmarshalJSON decodes a [index, total] pair.
func (s *ShardID) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	s.Index = pair[0]
	s.Total = pair[1]
	return nil
}

// Session is the resumable identity of a shard: assigned by Ready, advanced
// by every dispatched event that carries a sequence number, and discarded
// when the gateway declares it dead.
type Session struct {
	ID        string
	Sequence  uint64
	ResumeURL string
}

// Valid reports whether the session can be resumed.
func (s Session) Valid() bool {
	return s.ID != ""
}

// Advance records a dispatch sequence number. The stored sequence only ever
// increases; stale or duplicate numbers are ignored. Reports whether the
// sequence moved forward.
func (s *Session) Advance(seq uint64) bool {
	if seq <= s.Sequence {
		return false
	}
	s.Sequence = seq
	return true
}
