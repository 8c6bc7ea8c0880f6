package checkpoint

import (
	"context"
	"errors"

	"github.com/rzbill/shardsink/internal/ingest"
	pebblestore "github.com/rzbill/shardsink/internal/storage/pebble"
	"github.com/rzbill/shardsink/internal/stream"
)

// Keyspace: ck/{stream}/{shard}

var ckPrefix = []byte("ck/")

func keyCheckpoint(streamName, shardID string) []byte {
	k := make([]byte, 0, len(streamName)+len(shardID)+8)
	k = append(k, ckPrefix...)
	k = append(k, streamName...)
	k = append(k, '/')
	k = append(k, shardID...)
	return k
}

// PebbleStore keeps checkpoints in the local Pebble database.
type PebbleStore struct {
	db         *pebblestore.DB
	streamName string
}

// NewPebbleStore returns a checkpoint store for one stream.
func NewPebbleStore(db *pebblestore.DB, streamName string) *PebbleStore {
	return &PebbleStore{db: db, streamName: streamName}
}

// Commit stores seq as the shard's checkpoint if it is ahead of the stored
// one. Regressions and repeats are ignored.
func (s *PebbleStore) Commit(ctx context.Context, shardID, seq string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := keyCheckpoint(s.streamName, shardID)
	cur, err := s.db.Get(key)
	if err == nil && stream.CompareSequences(seq, string(cur)) <= 0 {
		return nil
	}
	if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
		return err
	}
	return s.db.Set(key, []byte(seq))
}

// Get loads the stored checkpoint for a shard.
func (s *PebbleStore) Get(shardID string) (string, bool, error) {
	val, err := s.db.Get(keyCheckpoint(s.streamName, shardID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// Shard returns an ingest.Checkpointer bound to one shard.
func (s *PebbleStore) Shard(shardID string) ingest.Checkpointer {
	return shardCheckpointer{store: s, shardID: shardID}
}

type shardCheckpointer struct {
	store   *PebbleStore
	shardID string
}

func (c shardCheckpointer) CheckpointAt(ctx context.Context, seq string) error {
	return c.store.Commit(ctx, c.shardID, seq)
}
