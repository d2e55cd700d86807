// Package store persists gateway state and archives dispatched events.
//
// Components:
//   - Connect / BuildConnString: pgx pool construction from config
//   - SessionStore: per-shard resumable session state, one row per shard,
//     keyed by gatherer instance
//   - EventWriter: batched append-only archive of dispatch events with
//     ON CONFLICT dedup, so replays after a resume do not double-write
package store
