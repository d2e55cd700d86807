// Package cluster orchestrates a multi-shard gateway connection.
//
// The Manager:
//   - resolves gateway URL, shard count, and identify concurrency over REST
//     when the config leaves them unset
//   - builds the shared identify queue and one shard per index
//   - restores persisted sessions so a restart resumes instead of
//     re-identifying
//   - fans every shard's events into one fanout registry for consumers
//   - persists sessions again on shutdown
//
// A shard that hits a fatal close code stays down; that is visible in
// Stats and the logs rather than silently retried.
package cluster
