package ingest

import (
	"context"
	"errors"
)

// SequenceRange is a contiguous slice of one shard consumed for one batch.
// Both bounds are inclusive.
type SequenceRange struct {
	Stream  string `json:"stream"`
	ShardID string `json:"shardId"`
	FromSeq string `json:"fromSeq"`
	ToSeq   string `json:"toSeq"`
	Count   int    `json:"count"`
}

// BlockStore persists a sealed batch payload together with its range
// metadata. Implementations must be safe for concurrent use across batches.
type BlockStore interface {
	Store(ctx context.Context, batchID string, payload []byte, ranges []SequenceRange) error
}

// Checkpointer is the externally supplied per-shard checkpoint handle.
// CheckpointAt persists seq as the shard's resume position; implementations
// are expected to ignore regressions, making the call idempotent.
type Checkpointer interface {
	CheckpointAt(ctx context.Context, seq string) error
}

// Receiver-fatal errors. Both indicate the receiver can no longer account
// for its data and must be restarted by the supervisor.
var (
	// ErrRangeSetMissing reports a finalized range set absent at store time.
	// This is an accounting bug, never a normal miss.
	ErrRangeSetMissing = errors.New("ingest: finalized range set missing at store time")
	// ErrStoreFailed reports that all store attempts for a batch failed.
	ErrStoreFailed = errors.New("ingest: store attempts exhausted")
)

// ErrAborted is returned by operations on a receiver that has already
// aborted.
var ErrAborted = errors.New("ingest: receiver aborted")
