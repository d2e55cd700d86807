// Package discord defines the gateway wire protocol.
//
// Contents:
//   - opcodes and close codes, with resumable/fatal classification
//   - payload envelope plus identify/resume/heartbeat/command bodies
//   - the decoded Event model, including lifecycle pseudo-events
//   - Session and ShardID value types shared across the runtime
//
// Gateway reference: https://discord.com/developers/docs/events/gateway
package discord
