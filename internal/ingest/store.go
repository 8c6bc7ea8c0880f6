package ingest

import (
	"fmt"

	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// storeBatch consumes the finalized range set for batchID (exactly once) and
// attempts the durable store. Absence of the set is a consistency violation,
// not a miss: it means ranges were finalized under a different batch id or
// consumed twice, and the receiver cannot be trusted to account for data.
func (r *Receiver) storeBatch(batchID string, payload []byte) error {
	ranges, ok := r.tracker.pop(batchID)
	if !ok {
		err := fmt.Errorf("%w: batch %s", ErrRangeSetMissing, batchID)
		r.abort(err)
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err := r.store.Store(r.ctx, batchID, payload, ranges)
		if err == nil {
			r.applyStored(ranges)
			r.logger.Debug("batch stored",
				logpkg.Str("batch", batchID),
				logpkg.Int("ranges", len(ranges)),
				logpkg.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		r.logger.Warn("store attempt failed",
			logpkg.Str("batch", batchID),
			logpkg.Int("attempt", attempt),
			logpkg.Err(err))
	}

	err := fmt.Errorf("%w: batch %s after %d attempts: %w", ErrStoreFailed, batchID, r.attempts, lastErr)
	r.abort(err)
	return err
}

// applyStored publishes the newest stored sequence per shard, in range
// order. When one batch carries several ranges for the same shard the last
// one wins; ranges arrive in consumption order, so that is also the newest.
func (r *Receiver) applyStored(ranges []SequenceRange) {
	for _, rg := range ranges {
		r.latest.set(rg.ShardID, rg.ToSeq)
	}
}
