package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rzbill/shardsink/internal/batcher"
	"github.com/rzbill/shardsink/internal/stream"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// pageCap bounds a single source fetch and therefore the ingestion limit
// advertised to shard workers.
const pageCap = 10000

// defaultStoreAttempts is the total store attempt budget per batch
// (1 initial + 3 retries, no backoff between attempts).
const defaultStoreAttempts = 4

// Options configures a Receiver.
type Options struct {
	// Stream is the source stream name stamped on every SequenceRange.
	Stream string
	// Batch sets the batching engine boundaries.
	Batch batcher.Policy
	// StoreAttempts overrides the total store attempt budget. Default 4.
	StoreAttempts int
	// Logger receives receiver diagnostics. Default: no-op.
	Logger logpkg.Logger
}

// Receiver is the ingestion core for one stream assignment. It implements
// batcher.Handler; all accounting flows through the engine callbacks.
type Receiver struct {
	streamName string
	store      BlockStore
	engine     *batcher.Engine
	tracker    *rangeTracker
	latest     *latestStored
	ckpts      *checkpointTracker
	attempts   int
	logger     logpkg.Logger

	ctx    context.Context
	cancel context.CancelFunc

	abortOnce sync.Once
	abortErr  error
	done      chan struct{}
}

// NewReceiver builds a Receiver over the given block store.
func NewReceiver(store BlockStore, opts Options) *Receiver {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNop()
	}
	logger = logger.WithComponent("ingest").With(logpkg.Str("stream", opts.Stream))
	attempts := opts.StoreAttempts
	if attempts <= 0 {
		attempts = defaultStoreAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Receiver{
		streamName: opts.Stream,
		store:      store,
		tracker:    newRangeTracker(),
		latest:     newLatestStored(),
		ckpts:      newCheckpointTracker(),
		attempts:   attempts,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	r.engine = batcher.New(opts.Batch, r, logger)
	return r
}

// Start launches the engine's flush loop.
func (r *Receiver) Start() { r.engine.Start() }

// Stop flushes the open batch and stops the engine. The final checkpoint
// pass stays with the host: call FlushCheckpoints or RemoveCheckpointer.
func (r *Receiver) Stop() {
	r.engine.Stop()
	r.cancel()
}

// Done is closed when the receiver aborts.
func (r *Receiver) Done() <-chan struct{} { return r.done }

// Err returns the abort cause, if any.
func (r *Receiver) Err() error {
	select {
	case <-r.done:
		return r.abortErr
	default:
		return nil
	}
}

// AddRecords derives one SequenceRange spanning recs and forwards the
// records with that range as metadata into the batching engine. Safe for
// concurrent use by shard workers. No-op on empty input.
func (r *Receiver) AddRecords(shardID string, recs []stream.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	rng := SequenceRange{
		Stream:  r.streamName,
		ShardID: shardID,
		FromSeq: recs[0].Sequence,
		ToSeq:   recs[len(recs)-1].Sequence,
		Count:   len(recs),
	}
	items := make([][]byte, len(recs))
	for i, rec := range recs {
		items[i] = rec.Data
	}
	return r.engine.AddAllWithMetadata(items, rng)
}

// CurrentIngestionLimit reports how many records the caller should fetch
// next: the open batch's remaining capacity, capped at the page limit.
func (r *Receiver) CurrentIngestionLimit() int {
	rem := r.engine.Remaining()
	if rem > pageCap {
		return pageCap
	}
	return rem
}

// LatestSequenceToCheckpoint returns the newest confirmed-stored sequence
// number for the shard, if any batch containing it has been stored.
func (r *Receiver) LatestSequenceToCheckpoint(shardID string) (string, bool) {
	return r.latest.get(shardID)
}

// Flush seals and stores the open batch synchronously. Intended for
// shutdown paths and tests; steady-state sealing is driven by the engine.
func (r *Receiver) Flush() { r.engine.Flush() }

// OnAddData buffers the range for the currently open batch. Runs with the
// engine lock held.
func (r *Receiver) OnAddData(meta any) {
	rng, ok := meta.(SequenceRange)
	if !ok {
		return
	}
	r.tracker.add(rng)
}

// OnGenerateBlock finalizes the buffered ranges under the sealed batch id.
// Runs with the engine lock held; mutually exclusive with OnAddData.
func (r *Receiver) OnGenerateBlock(batchID string) {
	r.tracker.finalize(batchID)
}

// OnPushBlock stores the sealed batch. See storeBatch.
func (r *Receiver) OnPushBlock(batchID string, payload []byte) error {
	return r.storeBatch(batchID, payload)
}

// OnError aborts the receiver; the engine routes push failures here.
func (r *Receiver) OnError(err error) { r.abort(err) }

// abort records the first fatal error, cancels in-flight work, and closes
// Done. Subsequent calls are no-ops.
func (r *Receiver) abort(err error) {
	r.abortOnce.Do(func() {
		r.abortErr = err
		r.logger.Error("receiver aborted", logpkg.Err(err))
		r.cancel()
		close(r.done)
	})
}
