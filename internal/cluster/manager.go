package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/discord-data/internal/discord"
	"github.com/rickgao/discord-data/internal/fanout"
	"github.com/rickgao/discord-data/internal/queue"
	"github.com/rickgao/discord-data/internal/rest"
	"github.com/rickgao/discord-data/internal/shard"
)

// SessionStore persists per-shard sessions across restarts. Implemented by
// store.SessionStore; nil disables persistence.
type SessionStore interface {
	LoadAll(ctx context.Context, total int) (map[int]discord.Session, error)
	Save(ctx context.Context, shard discord.ShardID, sess discord.Session) error
}

// Manager orchestrates the shard set.
type Manager interface {
	// Start resolves gateway parameters, builds the shards, and connects
	// them all.
	Start(ctx context.Context) error

	// Stop shuts every shard down and persists resumable sessions.
	Stop(ctx context.Context) error

	// Registry is the event fanout all shards publish into.
	Registry() *fanout.Registry

	// Shards returns the running shard set.
	Shards() []shard.Shard

	// Stats returns a snapshot of every shard plus fanout totals.
	Stats() ManagerStats

	// Broadcast sends a command payload on every connected shard.
	Broadcast(ctx context.Context, op discord.Opcode, d any) error
}

// manager implements the Manager interface.
type manager struct {
	cfg      Config
	rest     *rest.Client
	sessions SessionStore
	logger   *slog.Logger

	registry *fanout.Registry
	queue    queue.Queue

	mu      sync.RWMutex
	shards  []shard.Shard
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a cluster manager. The REST client may be nil when the
// config pins gateway URL, shard count, and identify concurrency; the
// session store may be nil to disable persistence.
func NewManager(cfg Config, restClient *rest.Client, sessions SessionStore, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &manager{
		cfg:      cfg,
		rest:     restClient,
		sessions: sessions,
		logger:   logger,
		registry: fanout.NewRegistry(cfg.FanoutBuffer, logger),
	}
}

// Start begins the cluster.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	gatewayURL, count, total, concurrency, err := m.resolve(ctx)
	if err != nil {
		// A failed resolution leaves nothing running; allow another Start.
		m.cancel()
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}

	m.queue = queue.New(queue.Config{
		Concurrency: concurrency,
		Limit:       m.cfg.IdentifyLimit,
		Window:      m.cfg.IdentifyWindow,
	}, m.logger)

	saved := m.loadSessions(ctx, total)

	shards := make([]shard.Shard, 0, count)
	for i := 0; i < count; i++ {
		index := m.cfg.ShardOffset + i
		sh := shard.NewShard(shard.Config{
			ID:             discord.ShardID{Index: index, Total: total},
			Token:          m.cfg.Token,
			Intents:        m.cfg.Intents,
			GatewayURL:     gatewayURL,
			HelloTimeout:   m.cfg.HelloTimeout,
			LargeThreshold: m.cfg.LargeThreshold,
			Compression:    m.cfg.Compression,
			EventBuffer:    m.cfg.EventBuffer,
		}, m.queue, m.logger)

		if sess, ok := saved[index]; ok {
			sh.RestoreSession(sess)
			m.logger.Info("session restored",
				"shard", sh.ID().String(),
				"session", sess.ID,
				"seq", sess.Sequence,
			)
		}
		shards = append(shards, sh)
	}

	m.mu.Lock()
	m.shards = shards
	m.mu.Unlock()

	for _, sh := range shards {
		if err := sh.Start(m.ctx); err != nil {
			return fmt.Errorf("start shard %s: %w", sh.ID(), err)
		}
		m.wg.Add(1)
		go m.forwardLoop(sh)
	}

	m.logger.Info("cluster started",
		"shards", count,
		"shard_total", total,
		"concurrency", concurrency,
		"gateway_url", gatewayURL,
	)
	return nil
}

// Stop shuts the cluster down.
func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	shards := m.shards
	m.mu.Unlock()

	m.logger.Info("stopping cluster")

	for _, sh := range shards {
		if err := sh.Stop(ctx); err != nil {
			m.logger.Warn("shard stop failed", "shard", sh.ID().String(), "error", err)
		}
	}

	// Sessions are final once the shards are down.
	m.saveSessions(ctx, shards)

	if m.cancel != nil {
		m.cancel()
	}
	if m.queue != nil {
		m.queue.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("cluster stop timed out")
	}

	m.registry.Clear()
	m.logger.Info("cluster stopped")
	return nil
}

// Registry returns the event fanout.
func (m *manager) Registry() *fanout.Registry {
	return m.registry
}

// Shards returns the running shard set.
func (m *manager) Shards() []shard.Shard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]shard.Shard, len(m.shards))
	copy(out, m.shards)
	return out
}

// Stats returns a cluster snapshot.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	shards := m.shards
	m.mu.RUnlock()

	stats := ManagerStats{
		ShardCount: len(shards),
		Fanout:     m.registry.Stats(),
	}
	for _, sh := range shards {
		status := sh.Status()
		if status == shard.StatusConnected {
			stats.Connected++
		}
		stats.Shards = append(stats.Shards, ShardStats{
			ID:      sh.ID(),
			Status:  status,
			Latency: sh.Latency(),
			Session: sh.Session().ID,
		})
	}
	return stats
}

// Broadcast sends a command on every connected shard.
func (m *manager) Broadcast(ctx context.Context, op discord.Opcode, d any) error {
	var (
		firstErr error
		failed   int
	)
	for _, sh := range m.Shards() {
		if err := sh.Send(ctx, op, d); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("broadcast failed on %d shards: %w", failed, firstErr)
	}
	return nil
}

// resolve fills in gateway URL, shard counts, and identify concurrency,
// asking the gateway over REST for whatever the config leaves unset.
func (m *manager) resolve(ctx context.Context) (gatewayURL string, count, total, concurrency int, err error) {
	gatewayURL = m.cfg.GatewayURL
	count = m.cfg.ShardCount
	concurrency = m.cfg.IdentifyConcurrency

	if gatewayURL == "" || count <= 0 || concurrency <= 0 {
		if m.rest == nil {
			return "", 0, 0, 0, ErrNoRESTClient
		}
		gw, gerr := m.rest.GetGatewayBot(ctx)
		if gerr != nil {
			return "", 0, 0, 0, fmt.Errorf("resolve gateway: %w", gerr)
		}
		if gatewayURL == "" {
			gatewayURL = gw.URL
		}
		if count <= 0 {
			count = gw.Shards
		}
		if concurrency <= 0 {
			concurrency = gw.SessionStartLimit.MaxConcurrency
		}
		m.logger.Info("gateway resolved",
			"url", gw.URL,
			"recommended_shards", gw.Shards,
			"max_concurrency", gw.SessionStartLimit.MaxConcurrency,
			"identifies_remaining", gw.SessionStartLimit.Remaining,
		)
		if gw.SessionStartLimit.Remaining < count {
			m.logger.Warn("identify budget lower than shard count",
				"remaining", gw.SessionStartLimit.Remaining,
				"shards", count,
				"resets_in", gw.SessionStartLimit.ResetIn(),
			)
		}
	}

	if count <= 0 {
		count = 1
	}
	total = m.cfg.ShardTotal
	if total <= 0 {
		total = count
	}
	return gatewayURL, count, total, concurrency, nil
}

// loadSessions pulls persisted sessions; failures degrade to fresh
// identifies rather than blocking startup.
func (m *manager) loadSessions(ctx context.Context, total int) map[int]discord.Session {
	if m.sessions == nil {
		return nil
	}
	saved, err := m.sessions.LoadAll(ctx, total)
	if err != nil {
		m.logger.Warn("session restore failed, identifying fresh", "error", err)
		return nil
	}
	return saved
}

// saveSessions persists every still-resumable session.
func (m *manager) saveSessions(ctx context.Context, shards []shard.Shard) {
	if m.sessions == nil {
		return
	}
	persisted := 0
	for _, sh := range shards {
		sess := sh.Session()
		if !sess.Valid() {
			continue
		}
		if err := m.sessions.Save(ctx, sh.ID(), sess); err != nil {
			m.logger.Warn("session save failed", "shard", sh.ID().String(), "error", err)
			continue
		}
		persisted++
	}
	m.logger.Info("sessions persisted", "count", persisted)
}

// forwardLoop publishes one shard's events into the registry until the
// shard closes its channel.
func (m *manager) forwardLoop(sh shard.Shard) {
	defer m.wg.Done()

	for ev := range sh.Events() {
		m.registry.Publish(ev)
	}
}
