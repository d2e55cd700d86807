// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Dispatch event rates and payload volume per shard
//   - Shard lifecycle state and heartbeat latency
//   - Disconnect, identify, and resume counts
//   - Fanout publish and drop totals
//
// The Collector keeps the metrics current by consuming the event fanout and
// periodically probing the shard set.
package metrics
