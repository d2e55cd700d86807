// Package rest provides the small slice of the Discord REST API the shard
// runtime needs.
//
// Endpoints:
//   - GET /gateway: unauthenticated gateway URL
//   - GET /gateway/bot: gateway URL, recommended shard count, and the
//     session_start_limit that seeds the identify queue
//
// Base URL: https://discord.com/api/v10
package rest
