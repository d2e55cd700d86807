// Package queue gates identify attempts against the gateway's session start
// rate limit.
//
// The gateway admits at most max_concurrency identifies at a time, keyed by
// shard index modulo max_concurrency (the "bucket"), and within a bucket at
// most limit identifies per rate limit window. Exceeding either gets the
// whole session start limit invalidated, so every shard asks the queue for a
// permit before sending an identify. Resumes do not count against the limit
// and never touch the queue.
//
// Behavior:
//
//   - Buckets are fully independent: shards in different buckets identify in
//     parallel.
//   - Waiters within a bucket are served first-come first-served.
//   - A waiter that gives up (context cancelled, queue closed) does not
//     consume a permit; the next waiter in line gets it.
//   - A zero concurrency, limit, or window disables throttling entirely.
package queue
