package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Queue hands out identify permits.
type Queue interface {
	// Wait blocks until the shard may send an identify. It returns the
	// context error if the caller gives up first, or ErrQueueClosed after
	// Close. A nil return is a consumed permit.
	Wait(ctx context.Context, shardIndex int) error

	// Close releases every waiter with ErrQueueClosed and stops the
	// bucket workers. Safe to call more than once.
	Close()
}

// waiter is one pending identify request. The grant channel is unbuffered:
// the bucket worker only counts a permit once the waiter actually receives
// it, so an abandoned waiter costs nothing.
type waiter struct {
	ctx   context.Context
	grant chan struct{}
}

type queue struct {
	cfg    Config
	logger *slog.Logger

	buckets []chan waiter
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New builds a queue and starts one worker per bucket.
func New(cfg Config, logger *slog.Logger) Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &queue{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	if cfg.unlimited() {
		return q
	}
	q.buckets = make([]chan waiter, cfg.Concurrency)
	for i := range q.buckets {
		q.buckets[i] = make(chan waiter, 16)
		q.wg.Add(1)
		go q.runBucket(i, q.buckets[i])
	}
	return q
}

func (q *queue) Wait(ctx context.Context, shardIndex int) error {
	if q.cfg.unlimited() {
		return nil
	}

	w := waiter{ctx: ctx, grant: make(chan struct{})}
	bucket := q.buckets[shardIndex%len(q.buckets)]

	select {
	case bucket <- w:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}

	select {
	case <-w.grant:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

func (q *queue) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}

// runBucket serves one bucket's waiters in arrival order, granting at most
// Limit permits per Window. The window is anchored at the first grant of
// each cycle, so an idle bucket never makes its next waiter pay for time
// nobody used.
func (q *queue) runBucket(id int, reqs <-chan waiter) {
	defer q.wg.Done()

	var (
		windowStart time.Time
		used        int
	)
	for {
		var w waiter
		select {
		case w = <-reqs:
		case <-q.done:
			return
		}

		now := time.Now()
		if used >= q.cfg.Limit {
			if wait := windowStart.Add(q.cfg.Window).Sub(now); wait > 0 {
				q.logger.Debug("identify bucket throttled",
					"bucket", id,
					"wait", wait)
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-q.done:
					timer.Stop()
					return
				}
				timer.Stop()
			}
			used = 0
		} else if used > 0 && now.Sub(windowStart) >= q.cfg.Window {
			used = 0
		}

		// Two-way handoff: if the waiter is gone its permit survives for
		// the next one in line.
		select {
		case w.grant <- struct{}{}:
			if used == 0 {
				windowStart = time.Now()
			}
			used++
		case <-w.ctx.Done():
		case <-q.done:
			return
		}
	}
}
