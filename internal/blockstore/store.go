package blockstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/shardsink/internal/ingest"
	pebblestore "github.com/rzbill/shardsink/internal/storage/pebble"
	"github.com/rzbill/shardsink/internal/stream"
)

// ErrBatchNotFound reports a missing batch id.
var ErrBatchNotFound = errors.New("blockstore: batch not found")

// Store is a Pebble-backed ingest.BlockStore scoped to one stream.
type Store struct {
	db         *pebblestore.DB
	streamName string

	// mu serializes Store calls so read-compare-write on the per-shard
	// last markers stays consistent.
	mu sync.Mutex
}

// New returns a block store for the given stream over an open database.
func New(db *pebblestore.DB, streamName string) *Store {
	return &Store{db: db, streamName: streamName}
}

// Store writes the batch payload, its range set, and the advanced per-shard
// last markers in one atomic commit. Markers only move forward; re-storing
// an old batch never regresses them.
func (s *Store) Store(ctx context.Context, batchID string, payload []byte, ranges []ingest.SequenceRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(ranges)
	if err != nil {
		return fmt.Errorf("encode range set: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(KeyBatchPayload(s.streamName, batchID), payload, nil); err != nil {
		return err
	}
	if err := b.Set(KeyBatchRanges(s.streamName, batchID), encoded, nil); err != nil {
		return err
	}
	// Collapse to one marker write per shard so same-shard ranges within the
	// batch cannot regress each other.
	newest := map[string]string{}
	for _, rng := range ranges {
		if cur, ok := newest[rng.ShardID]; !ok || stream.CompareSequences(rng.ToSeq, cur) > 0 {
			newest[rng.ShardID] = rng.ToSeq
		}
	}
	for shardID, seq := range newest {
		advance, err := s.markerAdvances(shardID, seq)
		if err != nil {
			return err
		}
		if !advance {
			continue
		}
		if err := b.Set(KeyShardLast(s.streamName, shardID), []byte(seq), nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}

func (s *Store) markerAdvances(shardID, seq string) (bool, error) {
	cur, err := s.db.Get(KeyShardLast(s.streamName, shardID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return stream.CompareSequences(seq, string(cur)) > 0, nil
}

// Get returns the payload and range set for a stored batch.
func (s *Store) Get(batchID string) ([]byte, []ingest.SequenceRange, error) {
	payload, err := s.db.Get(KeyBatchPayload(s.streamName, batchID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, nil, err
	}
	encoded, err := s.db.Get(KeyBatchRanges(s.streamName, batchID))
	if err != nil {
		return nil, nil, err
	}
	var ranges []ingest.SequenceRange
	if err := json.Unmarshal(encoded, &ranges); err != nil {
		return nil, nil, fmt.Errorf("decode range set for %s: %w", batchID, err)
	}
	return payload, ranges, nil
}

// List returns the stored batch ids for the stream in seal order.
func (s *Store) List() ([]string, error) {
	prefix := KeyBatchPrefix(s.streamName)
	upper := append(append([]byte(nil), prefix...), 0xff)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []string
	for it.First(); it.Valid(); it.Next() {
		key := it.Key()
		rest := key[len(prefix):]
		if !bytes.HasSuffix(rest, payloadSuffix) {
			continue
		}
		ids = append(ids, string(rest[:len(rest)-len(payloadSuffix)]))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return ids, nil
}

// LastStored returns the newest stored sequence for a shard, or ok=false
// when the shard has no stored batches.
func (s *Store) LastStored(shardID string) (string, bool, error) {
	val, err := s.db.Get(KeyShardLast(s.streamName, shardID))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}
