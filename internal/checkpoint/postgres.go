package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/rzbill/shardsink/internal/ingest"
)

// DefaultTable is the checkpoint table name when none is configured.
const DefaultTable = "checkpoints"

// PostgresStore keeps checkpoints in a Postgres table shared across hosts.
// The monotonic guard runs inside the upsert, so concurrent committers from
// different processes cannot regress a shard.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects to Postgres and ensures the checkpoint table exists.
// An empty table name selects DefaultTable.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &PostgresStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			stream_name     TEXT        NOT NULL,
			shard_id        TEXT        NOT NULL,
			sequence_number TEXT        NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (stream_name, shard_id)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure checkpoint table: %w", err)
	}
	return nil
}

// Commit upserts seq for the shard. Sequences compare by length then
// lexicographically, matching the decimal-string ordering used everywhere
// else; the WHERE clause drops regressions and repeats.
func (s *PostgresStore) Commit(ctx context.Context, streamName, shardID, seq string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (stream_name, shard_id, sequence_number, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (stream_name, shard_id) DO UPDATE
		SET sequence_number = EXCLUDED.sequence_number, updated_at = now()
		WHERE (length(%s.sequence_number), %s.sequence_number)
		    < (length(EXCLUDED.sequence_number), EXCLUDED.sequence_number)`,
		s.table, s.table, s.table)
	if _, err := s.db.ExecContext(ctx, query, streamName, shardID, seq); err != nil {
		return fmt.Errorf("commit checkpoint %s/%s: %w", streamName, shardID, err)
	}
	return nil
}

// Get loads the stored checkpoint for a shard.
func (s *PostgresStore) Get(ctx context.Context, streamName, shardID string) (string, bool, error) {
	query := fmt.Sprintf(
		`SELECT sequence_number FROM %s WHERE stream_name = $1 AND shard_id = $2`, s.table)
	var seq string
	err := s.db.QueryRowContext(ctx, query, streamName, shardID).Scan(&seq)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return seq, true, nil
}

// Shard returns an ingest.Checkpointer bound to one stream/shard.
func (s *PostgresStore) Shard(streamName, shardID string) ingest.Checkpointer {
	return pgShardCheckpointer{store: s, streamName: streamName, shardID: shardID}
}

type pgShardCheckpointer struct {
	store      *PostgresStore
	streamName string
	shardID    string
}

func (c pgShardCheckpointer) CheckpointAt(ctx context.Context, seq string) error {
	return c.store.Commit(ctx, c.streamName, c.shardID, seq)
}
