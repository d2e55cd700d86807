package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
	"github.com/rickgao/discord-data/internal/shard"
)

const (
	pollInterval   = 5 * time.Second
	listenerBuffer = 1024
)

// Collector keeps the metrics current. Event-shaped metrics come from a
// fanout listener; shard state is polled, since status and latency are not
// events.
type Collector struct {
	metrics  *Metrics
	registry *fanout.Registry
	shards   func() []shard.Shard
	logger   *slog.Logger

	listener *fanout.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a Collector. The shards func is called on every poll
// so the collector tracks whatever shard set the caller currently runs.
func NewCollector(m *Metrics, registry *fanout.Registry, shards func() []shard.Shard, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		metrics:  m,
		registry: registry,
		shards:   shards,
		logger:   logger,
	}
}

// Start subscribes to the fanout and begins collecting.
func (c *Collector) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.listener = c.registry.SubscribeBuffered(discord.MaskAll, listenerBuffer)

	c.poll()

	c.wg.Add(1)
	go c.consumeLoop()

	c.wg.Add(1)
	go c.pollLoop()

	c.logger.Info("metrics collector started", "poll_interval", pollInterval)
	return nil
}

// Stop shuts the collector down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.listener != nil {
		c.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("metrics collector stopped")
	case <-ctx.Done():
		c.logger.Warn("metrics collector stop timed out")
	}
	return nil
}

// consumeLoop turns fanout events into counters.
func (c *Collector) consumeLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.listener.Events():
			if !ok {
				return
			}
			c.observe(ev)
		}
	}
}

// pollLoop periodically samples shard state and fanout totals.
func (c *Collector) pollLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.poll()
		}
	}
}

func (c *Collector) observe(ev discord.Event) {
	label := strconv.Itoa(ev.Shard.Index)

	switch ev.Type {
	case discord.EventDisconnected:
		c.metrics.Disconnected(label)
	case discord.EventIdentifying:
		c.metrics.IdentifyStarted(label)
	case discord.EventResuming:
		c.metrics.ResumeStarted(label)
	default:
		if ev.Type.IsLifecycle() {
			return
		}
		// The type name keeps label cardinality bounded; unknown dispatch
		// names all collapse into UNKNOWN.
		c.metrics.EventReceived(label, ev.Type.String(), len(ev.Data))
	}
}

func (c *Collector) poll() {
	for _, sh := range c.shards() {
		label := strconv.Itoa(sh.ID().Index)
		c.metrics.ShardObserved(label, float64(sh.Status()), sh.Latency().Seconds())
	}

	stats := c.registry.Stats()
	c.metrics.FanoutObserved(stats.Published, stats.Dropped)
}
