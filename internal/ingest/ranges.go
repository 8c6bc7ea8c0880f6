package ingest

import "sync"

// rangeTracker owns the open-batch range buffer and the finalized range
// sets. One mutex guards both: a buffer append can never interleave with the
// finalize swap, so a range is always attributed to the batch its records
// landed in.
type rangeTracker struct {
	mu        sync.Mutex
	open      []SequenceRange
	finalized map[string][]SequenceRange
}

func newRangeTracker() *rangeTracker {
	return &rangeTracker{finalized: map[string][]SequenceRange{}}
}

// add appends a range to the open buffer.
func (t *rangeTracker) add(r SequenceRange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = append(t.open, r)
}

// finalize atomically moves the open buffer under batchID and clears it.
// The entry is recorded even when empty so a later pop can distinguish an
// empty batch from a missing one.
func (t *rangeTracker) finalize(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.open == nil {
		t.finalized[batchID] = []SequenceRange{}
	} else {
		t.finalized[batchID] = t.open
	}
	t.open = nil
}

// pop removes and returns the finalized set for batchID. The second return
// is false when no set was finalized under that id, or when it was already
// consumed.
func (t *rangeTracker) pop(batchID string) ([]SequenceRange, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.finalized[batchID]
	if ok {
		delete(t.finalized, batchID)
	}
	return set, ok
}

// openLen reports the number of buffered ranges for the open batch.
func (t *rangeTracker) openLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
