package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/discord-data/internal/discord"
)

// SessionStore persists resumable gateway sessions in the gateway_sessions
// table, one row per (instance, shard index). A restart loads them back so
// shards resume instead of burning identify permits.
type SessionStore struct {
	db       *pgxpool.Pool
	instance string
	logger   *slog.Logger
}

// NewSessionStore creates a session store scoped to one gatherer instance.
func NewSessionStore(db *pgxpool.Pool, instance string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		db:       db,
		instance: instance,
		logger:   logger,
	}
}

// Save upserts the session for one shard.
func (s *SessionStore) Save(ctx context.Context, shard discord.ShardID, sess discord.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO gateway_sessions (instance_id, shard_index, shard_total, session_id, resume_url, sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (instance_id, shard_index) DO UPDATE
		SET shard_total = EXCLUDED.shard_total,
		    session_id  = EXCLUDED.session_id,
		    resume_url  = EXCLUDED.resume_url,
		    sequence    = EXCLUDED.sequence,
		    updated_at  = now()
	`, s.instance, shard.Index, shard.Total, sess.ID, sess.ResumeURL, int64(sess.Sequence))
	if err != nil {
		return fmt.Errorf("save session for shard %s: %w", shard, err)
	}
	return nil
}

// Load returns the persisted session for one shard. The second return is
// false when no session is stored.
func (s *SessionStore) Load(ctx context.Context, shard discord.ShardID) (discord.Session, bool, error) {
	var (
		sess discord.Session
		seq  int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT session_id, resume_url, sequence
		FROM gateway_sessions
		WHERE instance_id = $1 AND shard_index = $2 AND shard_total = $3
	`, s.instance, shard.Index, shard.Total).Scan(&sess.ID, &sess.ResumeURL, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return discord.Session{}, false, nil
	}
	if err != nil {
		return discord.Session{}, false, fmt.Errorf("load session for shard %s: %w", shard, err)
	}
	sess.Sequence = uint64(seq)
	return sess, true, nil
}

// LoadAll returns every persisted session for the given shard set size,
// keyed by shard index. A reshard (different total) leaves old rows behind;
// they are ignored here because their sessions cover the wrong guild slices.
func (s *SessionStore) LoadAll(ctx context.Context, total int) (map[int]discord.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT shard_index, session_id, resume_url, sequence
		FROM gateway_sessions
		WHERE instance_id = $1 AND shard_total = $2
	`, s.instance, total)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	sessions := make(map[int]discord.Session)
	for rows.Next() {
		var (
			index int
			sess  discord.Session
			seq   int64
		)
		if err := rows.Scan(&index, &sess.ID, &sess.ResumeURL, &seq); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.Sequence = uint64(seq)
		sessions[index] = sess
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	s.logger.Debug("sessions loaded", "count", len(sessions), "shard_total", total)
	return sessions, nil
}

// Clear drops every session for this instance. Used when the gateway
// invalidates the whole shard set, for example after an intent change.
func (s *SessionStore) Clear(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM gateway_sessions WHERE instance_id = $1`, s.instance)
	if err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	return nil
}
