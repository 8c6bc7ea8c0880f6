package batcher

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingHandler captures callback order and sealed blocks.
type recordingHandler struct {
	mu       sync.Mutex
	metas    []any
	sealed   []string
	pushed   map[string][]byte
	pushErr  error
	errs     []error
	metaSnap map[string]int // metas seen at each OnGenerateBlock
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{pushed: map[string][]byte{}, metaSnap: map[string]int{}}
}

func (h *recordingHandler) OnAddData(meta any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metas = append(h.metas, meta)
}

func (h *recordingHandler) OnGenerateBlock(batchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealed = append(h.sealed, batchID)
	h.metaSnap[batchID] = len(h.metas)
}

func (h *recordingHandler) OnPushBlock(batchID string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushed[batchID] = payload
	return h.pushErr
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func TestSealOnMaxRecords(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 3, MaxBytes: 1 << 20}, h, nil)

	for i := 0; i < 3; i++ {
		if err := e.AddWithMetadata([]byte{byte(i)}, i); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if len(h.sealed) != 1 {
		t.Fatalf("expected one sealed batch, got %d", len(h.sealed))
	}
	batchID := h.sealed[0]
	payload, ok := h.pushed[batchID]
	if !ok {
		t.Fatalf("sealed batch was not pushed")
	}
	items, ok := DecodeBlock(payload)
	if !ok || len(items) != 3 {
		t.Fatalf("decode pushed block: ok=%v items=%d", ok, len(items))
	}
	// all three metas were delivered before the seal
	if h.metaSnap[batchID] != 3 {
		t.Fatalf("metas at seal = %d, want 3", h.metaSnap[batchID])
	}
}

func TestSealOnMaxBytes(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 1000, MaxBytes: 10}, h, nil)
	if err := e.Add(bytes.Repeat([]byte("x"), 16)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(h.sealed) != 1 {
		t.Fatalf("byte threshold did not seal")
	}
}

func TestFlushSealsOpenBatch(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 100, MaxBytes: 1 << 20}, h, nil)
	_ = e.Add([]byte("a"))
	e.Flush()
	if len(h.sealed) != 1 {
		t.Fatalf("flush did not seal")
	}
	e.Flush() // empty flush is a no-op
	if len(h.sealed) != 1 {
		t.Fatalf("empty flush sealed a batch")
	}
}

func TestGroupAddSealsAtomically(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 2, MaxBytes: 1 << 20}, h, nil)
	// Three records in one call: threshold trips mid-group but the whole
	// group (and its metadata) lands in the sealed batch.
	err := e.AddAllWithMetadata([][]byte{[]byte("a"), []byte("b"), []byte("c")}, "meta-1")
	if err != nil {
		t.Fatalf("add group: %v", err)
	}
	if len(h.sealed) != 1 {
		t.Fatalf("expected one sealed batch, got %d", len(h.sealed))
	}
	if h.metaSnap[h.sealed[0]] != 1 {
		t.Fatalf("metadata not delivered before seal")
	}
	items, ok := DecodeBlock(h.pushed[h.sealed[0]])
	if !ok || len(items) != 3 {
		t.Fatalf("group split across batches: %d items", len(items))
	}
}

func TestPushErrorRoutedToOnError(t *testing.T) {
	h := newRecordingHandler()
	h.pushErr = errors.New("store down")
	e := New(Policy{MaxRecords: 1, MaxBytes: 1 << 20}, h, nil)
	_ = e.Add([]byte("a"))
	if len(h.errs) != 1 || !errors.Is(h.errs[0], h.pushErr) {
		t.Fatalf("push error not routed: %v", h.errs)
	}
}

func TestRemaining(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 5, MaxBytes: 1 << 20}, h, nil)
	if got := e.Remaining(); got != 5 {
		t.Fatalf("remaining empty = %d", got)
	}
	_ = e.Add([]byte("a"))
	_ = e.Add([]byte("b"))
	if got := e.Remaining(); got != 3 {
		t.Fatalf("remaining after two adds = %d", got)
	}
}

func TestStartStopFlushes(t *testing.T) {
	h := newRecordingHandler()
	e := New(Policy{MaxRecords: 100, MaxBytes: 1 << 20, FlushInterval: time.Hour}, h, nil)
	e.Start()
	_ = e.Add([]byte("a"))
	e.Stop()
	if len(h.sealed) != 1 {
		t.Fatalf("stop did not flush open batch")
	}
}

func TestBlockRoundTrip(t *testing.T) {
	items := [][]byte{[]byte("one"), {}, []byte("three")}
	enc := EncodeBlock(items)
	dec, ok := DecodeBlock(enc)
	if !ok || len(dec) != 3 || string(dec[0]) != "one" || len(dec[1]) != 0 || string(dec[2]) != "three" {
		t.Fatalf("round trip: ok=%v dec=%q", ok, dec)
	}
	// corrupt one byte: checksum must catch it
	enc[1] ^= 0xff
	if _, ok := DecodeBlock(enc); ok {
		t.Fatalf("corrupted block decoded")
	}
}
