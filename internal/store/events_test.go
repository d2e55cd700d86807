package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rickgao/discord-data/internal/config"
	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
)

func testArchiveConfig() config.ArchiveConfig {
	return config.ArchiveConfig{
		Enabled:       true,
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    64,
	}
}

func TestEventWriter_Transform(t *testing.T) {
	w := NewEventWriter(testArchiveConfig(), nil, nil, nil)

	receivedAt := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	shard := discord.ShardID{Index: 2, Total: 4}

	// READY establishes the session every later row is attributed to.
	w.handleEvent(discord.Event{
		Type:       discord.EventReady,
		Name:       "READY",
		Sequence:   1,
		Shard:      shard,
		Data:       json.RawMessage(`{"v":10,"session_id":"sess-77"}`),
		ReceivedAt: receivedAt,
	})

	w.handleEvent(discord.Event{
		Type:       discord.EventMessageCreate,
		Name:       "MESSAGE_CREATE",
		Sequence:   9,
		Shard:      shard,
		Data:       json.RawMessage(`{"id":"123"}`),
		ReceivedAt: receivedAt,
	})

	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	if len(w.batch) != 2 {
		t.Fatalf("batch length = %d, want 2", len(w.batch))
	}

	row := w.batch[1]
	if row.ShardIndex != 2 {
		t.Errorf("ShardIndex = %d, want 2", row.ShardIndex)
	}
	if row.SessionID != "sess-77" {
		t.Errorf("SessionID = %q, want sess-77", row.SessionID)
	}
	if row.Sequence != 9 {
		t.Errorf("Sequence = %d, want 9", row.Sequence)
	}
	if row.EventType != "MESSAGE_CREATE" {
		t.Errorf("EventType = %q, want MESSAGE_CREATE", row.EventType)
	}
	if string(row.Payload) != `{"id":"123"}` {
		t.Errorf("Payload = %s", row.Payload)
	}
	if row.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", row.ReceivedAt, receivedAt.UnixMicro())
	}
}

func TestEventWriter_SessionTracking(t *testing.T) {
	w := NewEventWriter(testArchiveConfig(), nil, nil, nil)

	ev := discord.Event{
		Type:     discord.EventMessageCreate,
		Name:     "MESSAGE_CREATE",
		Sequence: 5,
		Shard:    discord.ShardID{Index: 0, Total: 2},
		Data:     json.RawMessage(`{}`),
	}

	// No READY seen yet: the session is unknown.
	if row := w.transform(ev); row.SessionID != "" {
		t.Errorf("SessionID = %q, want empty before READY", row.SessionID)
	}

	w.handleEvent(discord.Event{
		Type:  discord.EventReady,
		Name:  "READY",
		Shard: discord.ShardID{Index: 0, Total: 2},
		Data:  json.RawMessage(`{"session_id":"sess-a"}`),
	})

	if row := w.transform(ev); row.SessionID != "sess-a" {
		t.Errorf("SessionID = %q, want sess-a", row.SessionID)
	}

	// Sessions are tracked per shard.
	other := ev
	other.Shard = discord.ShardID{Index: 1, Total: 2}
	if row := w.transform(other); row.SessionID != "" {
		t.Errorf("SessionID = %q, want empty for untracked shard", row.SessionID)
	}
}

func TestEventWriter_RestoreSessions(t *testing.T) {
	w := NewEventWriter(testArchiveConfig(), nil, nil, nil)

	w.RestoreSessions(map[int]discord.Session{
		0: {ID: "sess-r0", Sequence: 10},
		3: {ID: "sess-r3", Sequence: 20},
	})

	ev := discord.Event{
		Type:     discord.EventMessageCreate,
		Name:     "MESSAGE_CREATE",
		Sequence: 11,
		Shard:    discord.ShardID{Index: 3, Total: 4},
		Data:     json.RawMessage(`{}`),
	}
	if row := w.transform(ev); row.SessionID != "sess-r3" {
		t.Errorf("SessionID = %q, want sess-r3", row.SessionID)
	}

	// A session already tracked from a READY is not clobbered by restore.
	w.handleEvent(discord.Event{
		Type:  discord.EventReady,
		Name:  "READY",
		Shard: discord.ShardID{Index: 0, Total: 4},
		Data:  json.RawMessage(`{"session_id":"sess-live"}`),
	})
	w.RestoreSessions(map[int]discord.Session{0: {ID: "sess-stale"}})

	ev.Shard = discord.ShardID{Index: 0, Total: 4}
	if row := w.transform(ev); row.SessionID != "sess-live" {
		t.Errorf("SessionID = %q, want sess-live", row.SessionID)
	}
}

func TestEventWriter_MalformedReady(t *testing.T) {
	w := NewEventWriter(testArchiveConfig(), nil, nil, nil)

	w.handleEvent(discord.Event{
		Type:  discord.EventReady,
		Name:  "READY",
		Shard: discord.ShardID{Index: 0, Total: 1},
		Data:  json.RawMessage(`not json`),
	})

	ev := discord.Event{
		Type:  discord.EventMessageCreate,
		Name:  "MESSAGE_CREATE",
		Shard: discord.ShardID{Index: 0, Total: 1},
	}
	if row := w.transform(ev); row.SessionID != "" {
		t.Errorf("SessionID = %q, want empty after malformed READY", row.SessionID)
	}
}

func TestEventWriter_ConsumesListener(t *testing.T) {
	registry := fanout.NewRegistry(16, nil)
	listener := registry.Subscribe(discord.MaskDispatch)

	w := NewEventWriter(testArchiveConfig(), listener, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	registry.Publish(discord.Event{
		Type:     discord.EventMessageCreate,
		Name:     "MESSAGE_CREATE",
		Sequence: 1,
		Shard:    discord.ShardID{Index: 0, Total: 1},
		Data:     json.RawMessage(`{}`),
	})
	registry.Publish(discord.Event{
		Type:     discord.EventGuildCreate,
		Name:     "GUILD_CREATE",
		Sequence: 2,
		Shard:    discord.ShardID{Index: 0, Total: 1},
		Data:     json.RawMessage(`{}`),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		w.batchMu.Lock()
		n := len(w.batch)
		w.batchMu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch length = %d, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Drop the rows so the final flush has nothing to write; there is no
	// database behind this test.
	w.batchMu.Lock()
	w.batch = w.batch[:0]
	w.batchMu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestEventWriter_Lifecycle(t *testing.T) {
	registry := fanout.NewRegistry(16, nil)
	listener := registry.Subscribe(discord.MaskDispatch)

	cfg := config.ArchiveConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    16,
	}
	w := NewEventWriter(cfg, listener, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestEventWriter_Stats(t *testing.T) {
	w := NewEventWriter(testArchiveConfig(), nil, nil, nil)

	stats := w.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}
