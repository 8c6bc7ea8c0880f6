package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rzbill/shardsink/internal/batcher"
	"github.com/rzbill/shardsink/internal/stream"
)

// fakeStore counts attempts and can be told to fail the first N.
type fakeStore struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	stored    map[string][]SequenceRange
}

func newFakeStore() *fakeStore { return &fakeStore{stored: map[string][]SequenceRange{}} }

func (s *fakeStore) Store(ctx context.Context, batchID string, payload []byte, ranges []SequenceRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return fmt.Errorf("store unavailable (attempt %d)", s.calls)
	}
	s.stored[batchID] = ranges
	return nil
}

func (s *fakeStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// countingCheckpointer records every CheckpointAt call.
type countingCheckpointer struct {
	mu   sync.Mutex
	seqs []string
	err  error
}

func (c *countingCheckpointer) CheckpointAt(ctx context.Context, seq string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.seqs = append(c.seqs, seq)
	return nil
}

func (c *countingCheckpointer) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seqs...)
}

func records(shard string, from, to int) []stream.Record {
	var out []stream.Record
	for i := from; i <= to; i++ {
		out = append(out, stream.Record{
			ShardID:  shard,
			Sequence: fmt.Sprintf("%d", i),
			Data:     []byte(fmt.Sprintf("rec-%d", i)),
		})
	}
	return out
}

func newTestReceiver(store BlockStore, pol batcher.Policy) *Receiver {
	return NewReceiver(store, Options{Stream: "orders", Batch: pol})
}

func TestAddRecordsEmptyIsNoop(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 10})
	if err := r.AddRecords("shard-a", nil); err != nil {
		t.Fatalf("empty add: %v", err)
	}
	r.Flush()
	if fs.attempts() != 0 {
		t.Fatalf("empty add produced a store")
	}
}

func TestStoreSuccessPublishesLatest(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	if err := r.AddRecords("shard-a", records("shard-a", 100, 105)); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Flush()

	seq, ok := r.LatestSequenceToCheckpoint("shard-a")
	if !ok || seq != "105" {
		t.Fatalf("latest = %q ok=%v, want 105", seq, ok)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("receiver aborted: %v", err)
	}
}

func TestStoreRetriesTransientFailures(t *testing.T) {
	fs := newFakeStore()
	fs.failFirst = 3 // succeed on the 4th and final attempt
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	_ = r.AddRecords("shard-a", records("shard-a", 1, 3))
	r.Flush()

	if fs.attempts() != 4 {
		t.Fatalf("attempts = %d, want 4", fs.attempts())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("receiver aborted on recoverable store: %v", err)
	}
	if seq, ok := r.LatestSequenceToCheckpoint("shard-a"); !ok || seq != "3" {
		t.Fatalf("latest after retries = %q ok=%v", seq, ok)
	}
}

func TestStoreExhaustionAbortsReceiver(t *testing.T) {
	fs := newFakeStore()
	fs.failFirst = 100 // never succeeds
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	_ = r.AddRecords("shard-a", records("shard-a", 1, 3))
	r.Flush()

	if fs.attempts() != 4 {
		t.Fatalf("attempts = %d, want exactly 4", fs.attempts())
	}
	err := r.Err()
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("abort cause = %v, want ErrStoreFailed", err)
	}
	if _, ok := r.LatestSequenceToCheckpoint("shard-a"); ok {
		t.Fatalf("failed store must not publish a sequence")
	}
	// subsequent adds are rejected
	if err := r.AddRecords("shard-a", records("shard-a", 4, 5)); !errors.Is(err, ErrAborted) {
		t.Fatalf("add after abort = %v, want ErrAborted", err)
	}
}

func TestMissingRangeSetIsConsistencyViolation(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	err := r.OnPushBlock("no-such-batch", []byte("payload"))
	if !errors.Is(err, ErrRangeSetMissing) {
		t.Fatalf("err = %v, want ErrRangeSetMissing", err)
	}
	if !errors.Is(r.Err(), ErrRangeSetMissing) {
		t.Fatalf("receiver should abort on missing range set")
	}
	if fs.attempts() != 0 {
		t.Fatalf("store must not be attempted without a range set")
	}
}

func TestLastWriteWinsForSameShard(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	// two ranges for the same shard in one batch
	_ = r.AddRecords("shard-a", records("shard-a", 100, 102))
	_ = r.AddRecords("shard-a", records("shard-a", 103, 105))
	r.Flush()

	if seq, _ := r.LatestSequenceToCheckpoint("shard-a"); seq != "105" {
		t.Fatalf("latest = %q, want last range's ToSeq 105", seq)
	}
}

func TestCurrentIngestionLimit(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 50000})
	if got := r.CurrentIngestionLimit(); got != 10000 {
		t.Fatalf("limit capped = %d, want 10000", got)
	}
	r2 := newTestReceiver(fs, batcher.Policy{MaxRecords: 8})
	_ = r2.AddRecords("shard-a", records("shard-a", 1, 3))
	if got := r2.CurrentIngestionLimit(); got != 5 {
		t.Fatalf("limit = %d, want 5", got)
	}
}

func TestFlushCheckpointsAdvancesOnce(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	cp := &countingCheckpointer{}
	r.SetCheckpointer("shard-a", cp)
	ctx := context.Background()

	// nothing stored yet: no checkpoint call at all
	if err := r.FlushCheckpoints(ctx); err != nil {
		t.Fatalf("flush empty: %v", err)
	}
	if len(cp.calls()) != 0 {
		t.Fatalf("checkpointed before anything stored: %v", cp.calls())
	}

	_ = r.AddRecords("shard-a", records("shard-a", 100, 105))
	r.Flush()

	if err := r.FlushCheckpoints(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	// second cycle with no new stores must not re-checkpoint
	if err := r.FlushCheckpoints(ctx); err != nil {
		t.Fatalf("flush again: %v", err)
	}
	if got := cp.calls(); len(got) != 1 || got[0] != "105" {
		t.Fatalf("checkpoint calls = %v, want exactly [105]", got)
	}
}

func TestFlushCheckpointsErrorKeepsWatermark(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	cp := &countingCheckpointer{err: errors.New("lease lost")}
	r.SetCheckpointer("shard-a", cp)
	_ = r.AddRecords("shard-a", records("shard-a", 1, 2))
	r.Flush()

	if err := r.FlushCheckpoints(context.Background()); err == nil {
		t.Fatalf("expected checkpoint error to surface")
	}
	// handle recovers: the same sequence is retried next cycle
	cp.err = nil
	if err := r.FlushCheckpoints(context.Background()); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
	if got := cp.calls(); len(got) != 1 || got[0] != "2" {
		t.Fatalf("calls after recovery = %v", got)
	}
}

func TestRemoveCheckpointerIssuesFinalCheckpoint(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	cp := &countingCheckpointer{}
	r.SetCheckpointer("shard-a", cp)
	_ = r.AddRecords("shard-a", records("shard-a", 100, 105))
	r.Flush()

	r.RemoveCheckpointer(context.Background(), "shard-a", cp)
	if got := cp.calls(); len(got) != 1 || got[0] != "105" {
		t.Fatalf("final checkpoint calls = %v, want [105]", got)
	}

	// after removal the shard is no longer tracked
	if err := r.FlushCheckpoints(context.Background()); err != nil {
		t.Fatalf("flush after remove: %v", err)
	}
	if got := cp.calls(); len(got) != 1 {
		t.Fatalf("removed shard still checkpointed: %v", got)
	}
}

func TestRemoveCheckpointerSkipsWhenCurrent(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	cp := &countingCheckpointer{}
	r.SetCheckpointer("shard-a", cp)
	_ = r.AddRecords("shard-a", records("shard-a", 100, 105))
	r.Flush()

	// periodic cycle already advanced to 105
	_ = r.FlushCheckpoints(context.Background())
	r.RemoveCheckpointer(context.Background(), "shard-a", cp)
	if got := cp.calls(); len(got) != 1 {
		t.Fatalf("redundant final checkpoint issued: %v", got)
	}
}

func TestRemoveCheckpointerWithoutStores(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 100})
	cp := &countingCheckpointer{}
	r.SetCheckpointer("shard-a", cp)
	r.RemoveCheckpointer(context.Background(), "shard-a", cp)
	if len(cp.calls()) != 0 {
		t.Fatalf("checkpointed a shard with nothing stored")
	}
}

func TestEndToEndSingleBatch(t *testing.T) {
	fs := newFakeStore()
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 6})
	cp := &countingCheckpointer{}
	r.SetCheckpointer("shard-a", cp)

	// exactly MaxRecords records: the engine seals and stores on add
	if err := r.AddRecords("shard-a", records("shard-a", 100, 105)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if fs.attempts() != 1 {
		t.Fatalf("expected one store, got %d", fs.attempts())
	}
	if seq, ok := r.LatestSequenceToCheckpoint("shard-a"); !ok || seq != "105" {
		t.Fatalf("latest = %q ok=%v", seq, ok)
	}
	if err := r.FlushCheckpoints(context.Background()); err != nil {
		t.Fatalf("flush checkpoints: %v", err)
	}
	if got := cp.calls(); len(got) != 1 || got[0] != "105" {
		t.Fatalf("checkpoint calls = %v, want exactly [105]", got)
	}
}

func TestConcurrentShardWorkers(t *testing.T) {
	fs := newFakeStore()
	// MaxRecords equals the group size, so every AddRecords call seals and
	// stores its own batch; per shard, stores stay in add order.
	r := newTestReceiver(fs, batcher.Policy{MaxRecords: 5})
	var wg sync.WaitGroup
	const shards = 4
	for s := 0; s < shards; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			shard := fmt.Sprintf("shard-%d", s)
			base := (s + 1) * 1000
			for i := 0; i < 10; i++ {
				from := base + i*5
				_ = r.AddRecords(shard, records(shard, from, from+4))
			}
		}(s)
	}
	wg.Wait()
	r.Flush()

	if err := r.Err(); err != nil {
		t.Fatalf("receiver aborted: %v", err)
	}
	for s := 0; s < shards; s++ {
		shard := fmt.Sprintf("shard-%d", s)
		want := fmt.Sprintf("%d", (s+1)*1000+49)
		if seq, ok := r.LatestSequenceToCheckpoint(shard); !ok || seq != want {
			t.Fatalf("%s latest = %q ok=%v, want %s", shard, seq, ok, want)
		}
	}
}
