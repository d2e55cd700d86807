// Package shard implements a single gateway connection's protocol state
// machine.
//
// A Shard:
//   - Dials the gateway (optionally with zlib-stream transport compression)
//     and waits for the Hello frame
//   - Identifies through the shared admission queue, or resumes a prior
//     session without consuming an identify permit
//   - Runs the heartbeat schedule, detects zombied connections by missing
//     acknowledgements, and tracks round-trip latency
//   - Forwards dispatched events, in socket order, on a blocking channel,
//     interleaved with lifecycle pseudo-events for state transitions
//   - Reconnects on its own after any recoverable disconnect, keeping the
//     session for a resume whenever the close cause allows it
//
// A fatal close code (bad token, bad intents, sharding misconfiguration)
// shuts the shard down permanently; everything else reconnects.
package shard
