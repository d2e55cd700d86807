package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/discord-data/internal/config"
	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
)

// WriterMetrics counts archive writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// eventRow is one archived dispatch.
type eventRow struct {
	ShardIndex int
	SessionID  string
	Sequence   int64
	EventType  string
	Payload    []byte
	ReceivedAt int64 // microseconds
}

// EventWriter consumes dispatch events from a fanout listener and batch
// writes them to the gateway_events table. Rows are keyed by
// (shard, session, sequence), so replayed events after a resume dedup as
// conflicts instead of double-writing.
type EventWriter struct {
	cfg    config.ArchiveConfig
	logger *slog.Logger

	// Input from the event fanout
	input *fanout.Listener

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Session ids by shard index, tracked from READY dispatches. Needed
	// because dispatch events carry only the shard, not the session.
	sessions   map[int]string
	sessionsMu sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewEventWriter creates an EventWriter.
func NewEventWriter(
	cfg config.ArchiveConfig,
	input *fanout.Listener,
	db *pgxpool.Pool,
	logger *slog.Logger,
) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{
		cfg:      cfg,
		input:    input,
		db:       db,
		logger:   logger,
		batch:    make([]eventRow, 0, cfg.BatchSize),
		sessions: make(map[int]string),
	}
}

// RestoreSessions seeds the shard-to-session map for shards that resume a
// persisted session, so rows archived before the next READY carry the right
// session id.
func (w *EventWriter) RestoreSessions(sessions map[int]discord.Session) {
	w.sessionsMu.Lock()
	defer w.sessionsMu.Unlock()
	for index, sess := range sessions {
		// Sessions tracked live from READY dispatches win over restored
		// ones; a shard that re-identified already has a newer id.
		if _, ok := w.sessions[index]; !ok {
			w.sessions[index] = sess.ID
		}
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. Stop the event source first so the
// listener channel drains and closes before the consumer goroutine exits.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	// Final flush runs on the caller's context; the writer's own context
	// is already cancelled.
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the listener and accumulates batches.
func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.input.Events():
			if !ok {
				return
			}
			w.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *EventWriter) handleEvent(ev discord.Event) {
	if ev.Type == discord.EventReady {
		w.trackSession(ev)
	}

	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// trackSession pulls the session id out of a READY dispatch.
func (w *EventWriter) trackSession(ev discord.Event) {
	var ready struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(ev.Data, &ready); err != nil || ready.SessionID == "" {
		return
	}
	w.sessionsMu.Lock()
	w.sessions[ev.Shard.Index] = ready.SessionID
	w.sessionsMu.Unlock()
}

// transform converts an Event to an eventRow.
func (w *EventWriter) transform(ev discord.Event) eventRow {
	w.sessionsMu.RLock()
	session := w.sessions[ev.Shard.Index]
	w.sessionsMu.RUnlock()

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return eventRow{
		ShardIndex: ev.Shard.Index,
		SessionID:  session,
		Sequence:   int64(ev.Sequence),
		EventType:  ev.Name,
		Payload:    ev.Data,
		ReceivedAt: receivedAt.UnixMicro(),
	}
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO gateway_events (shard_index, session_id, sequence, event_type, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (shard_index, session_id, sequence) DO NOTHING
		`, r.ShardIndex, r.SessionID, r.Sequence, r.EventType, r.Payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
