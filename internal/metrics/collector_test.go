package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
	"github.com/rickgao/discord-data/internal/shard"
)

// fakeShard is a static shard.Shard for poll tests.
type fakeShard struct {
	id      discord.ShardID
	status  shard.Status
	latency time.Duration
}

func (f *fakeShard) Start(ctx context.Context) error { return nil }

func (f *fakeShard) Stop(ctx context.Context) error { return nil }

func (f *fakeShard) Events() <-chan discord.Event { return nil }

func (f *fakeShard) Send(ctx context.Context, op discord.Opcode, d any) error { return nil }

func (f *fakeShard) Status() shard.Status { return f.status }

func (f *fakeShard) Session() discord.Session { return discord.Session{} }

func (f *fakeShard) Latency() time.Duration { return f.latency }

func (f *fakeShard) ID() discord.ShardID { return f.id }

func (f *fakeShard) RestoreSession(sess discord.Session) {}

func TestCollectorObserve(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	c := NewCollector(m, fanout.NewRegistry(16, nil), func() []shard.Shard { return nil }, nil)

	sh := discord.ShardID{Index: 0, Total: 1}
	c.observe(discord.Event{
		Type:  discord.EventMessageCreate,
		Name:  "MESSAGE_CREATE",
		Shard: sh,
		Data:  json.RawMessage(`{"id":"1"}`),
	})
	c.observe(discord.Event{Type: discord.EventDisconnected, Shard: sh})
	c.observe(discord.Event{Type: discord.EventIdentifying, Shard: sh})
	c.observe(discord.Event{Type: discord.EventResuming, Shard: sh})
	// Plain lifecycle events do not count as dispatches.
	c.observe(discord.Event{Type: discord.EventConnecting, Shard: sh})

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("0", "MESSAGE_CREATE")); got != 1 {
		t.Errorf("events_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventBytesTotal.WithLabelValues("0")); got != float64(len(`{"id":"1"}`)) {
		t.Errorf("event_bytes_total = %v", got)
	}
	if got := testutil.ToFloat64(m.DisconnectsTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("disconnects_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IdentifiesTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("identifies_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ResumesTotal.WithLabelValues("0")); got != 1 {
		t.Errorf("resumes_total = %v, want 1", got)
	}
}

func TestCollectorPoll(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	registry := fanout.NewRegistry(16, nil)

	shards := []shard.Shard{
		&fakeShard{
			id:      discord.ShardID{Index: 0, Total: 2},
			status:  shard.StatusConnected,
			latency: 35 * time.Millisecond,
		},
		&fakeShard{
			id:     discord.ShardID{Index: 1, Total: 2},
			status: shard.StatusResuming,
		},
	}
	c := NewCollector(m, registry, func() []shard.Shard { return shards }, nil)

	registry.Publish(discord.Event{Type: discord.EventMessageCreate})
	c.poll()

	if got := testutil.ToFloat64(m.ShardStatus.WithLabelValues("0")); got != float64(shard.StatusConnected) {
		t.Errorf("shard 0 status = %v, want %v", got, float64(shard.StatusConnected))
	}
	if got := testutil.ToFloat64(m.ShardStatus.WithLabelValues("1")); got != float64(shard.StatusResuming) {
		t.Errorf("shard 1 status = %v, want %v", got, float64(shard.StatusResuming))
	}
	if got := testutil.ToFloat64(m.ShardLatency.WithLabelValues("0")); got != 0.035 {
		t.Errorf("shard 0 latency = %v, want 0.035", got)
	}
	if got := testutil.ToFloat64(m.FanoutPublished); got != 1 {
		t.Errorf("fanout published = %v, want 1", got)
	}
}

func TestCollectorLifecycle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	registry := fanout.NewRegistry(16, nil)
	c := NewCollector(m, registry, func() []shard.Shard { return nil }, nil)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	registry.Publish(discord.Event{
		Type:  discord.EventMessageCreate,
		Name:  "MESSAGE_CREATE",
		Shard: discord.ShardID{Index: 0, Total: 1},
		Data:  json.RawMessage(`{}`),
	})

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.EventsTotal.WithLabelValues("0", "MESSAGE_CREATE")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("collector never consumed the published event")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
