package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createTableSQL = `
CREATE TABLE IF NOT EXISTS shard_sessions (
    instance_id TEXT        NOT NULL,
    shard_id    INTEGER     NOT NULL,
    session_id  TEXT        NOT NULL,
    seq         BIGINT      NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (instance_id, shard_id)
)`

	loadSQL = `
SELECT session_id, seq, updated_at
FROM shard_sessions
WHERE instance_id = $1 AND shard_id = $2`

	upsertSQL = `
INSERT INTO shard_sessions (instance_id, shard_id, session_id, seq, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (instance_id, shard_id)
DO UPDATE SET session_id = EXCLUDED.session_id, seq = EXCLUDED.seq, updated_at = EXCLUDED.updated_at`

	deleteSQL = `DELETE FROM shard_sessions WHERE instance_id = $1 AND shard_id = $2`
)

// Postgres stores sessions in the shard_sessions table, scoped by instance
// so several processes can share one database.
type Postgres struct {
	db         DB
	instanceID string
}

// NewPostgres creates a Postgres store for instanceID.
func NewPostgres(db DB, instanceID string) *Postgres {
	return &Postgres{db: db, instanceID: instanceID}
}

// EnsureSchema creates the sessions table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create shard_sessions: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, shardID int) (Record, bool, error) {
	rec := Record{ShardID: shardID}
	err := p.db.QueryRow(ctx, loadSQL, p.instanceID, shardID).Scan(&rec.SessionID, &rec.Seq, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load session for shard %d: %w", shardID, err)
	}
	return rec, true, nil
}

func (p *Postgres) Save(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := p.db.Exec(ctx, upsertSQL, p.instanceID, rec.ShardID, rec.SessionID, rec.Seq, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session for shard %d: %w", rec.ShardID, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, shardID int) error {
	if _, err := p.db.Exec(ctx, deleteSQL, p.instanceID, shardID); err != nil {
		return fmt.Errorf("delete session for shard %d: %w", shardID, err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
