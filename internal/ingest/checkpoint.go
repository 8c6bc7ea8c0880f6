package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/rzbill/shardsink/internal/stream"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// checkpointTracker owns the per-shard checkpoint handles and the watermark
// of the last sequence each handle successfully checkpointed.
type checkpointTracker struct {
	mu      sync.Mutex
	handles map[string]Checkpointer
	marked  map[string]string
}

func newCheckpointTracker() *checkpointTracker {
	return &checkpointTracker{handles: map[string]Checkpointer{}, marked: map[string]string{}}
}

// SetCheckpointer registers or replaces the handle for a shard.
// Re-registration across shard reassignment is expected.
func (r *Receiver) SetCheckpointer(shardID string, cp Checkpointer) {
	t := r.ckpts
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[shardID] = cp
}

// RemoveCheckpointer discards tracking for a shard at assignment end. When
// the newest stored sequence is ahead of the handle's watermark, one final
// best-effort checkpoint is issued with the provided handle first.
func (r *Receiver) RemoveCheckpointer(ctx context.Context, shardID string, cp Checkpointer) {
	t := r.ckpts
	t.mu.Lock()
	last := t.marked[shardID]
	delete(t.handles, shardID)
	delete(t.marked, shardID)
	t.mu.Unlock()

	latest, ok := r.latest.get(shardID)
	if !ok || cp == nil {
		return
	}
	if last != "" && stream.CompareSequences(latest, last) <= 0 {
		return
	}
	if err := cp.CheckpointAt(ctx, latest); err != nil {
		r.logger.Warn("final checkpoint failed",
			logpkg.Str("shard", shardID),
			logpkg.Str("seq", latest),
			logpkg.Err(err))
		return
	}
	r.logger.Info("final checkpoint",
		logpkg.Str("shard", shardID),
		logpkg.Str("seq", latest))
}

// FlushCheckpoints advances every tracked shard's checkpoint to its newest
// confirmed-stored sequence number. Driven by the host's timer. The handle
// map is snapshotted and the latest-stored table is read per shard without
// holding either lock across the cycle; checkpoints are monotonic, so a
// stale read just defers the advance to the next cycle. Shards with no
// stored sequence are skipped, never checkpointed.
func (r *Receiver) FlushCheckpoints(ctx context.Context) error {
	t := r.ckpts
	t.mu.Lock()
	snapshot := make(map[string]Checkpointer, len(t.handles))
	for shardID, cp := range t.handles {
		snapshot[shardID] = cp
	}
	t.mu.Unlock()

	var errs []error
	for shardID, cp := range snapshot {
		seq, ok := r.latest.get(shardID)
		if !ok {
			continue
		}
		t.mu.Lock()
		last := t.marked[shardID]
		t.mu.Unlock()
		if last != "" && stream.CompareSequences(seq, last) <= 0 {
			continue
		}
		if err := cp.CheckpointAt(ctx, seq); err != nil {
			r.logger.Warn("checkpoint failed",
				logpkg.Str("shard", shardID),
				logpkg.Str("seq", seq),
				logpkg.Err(err))
			errs = append(errs, err)
			continue
		}
		t.mu.Lock()
		// Only advance the watermark if the shard is still tracked; a
		// concurrent RemoveCheckpointer wins.
		if _, tracked := t.handles[shardID]; tracked {
			t.marked[shardID] = seq
		}
		t.mu.Unlock()
		r.logger.Debug("checkpoint advanced",
			logpkg.Str("shard", shardID),
			logpkg.Str("seq", seq))
	}
	return errors.Join(errs...)
}
