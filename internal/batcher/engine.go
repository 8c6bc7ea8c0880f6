package batcher

import (
	"sync"
	"time"

	"github.com/rzbill/shardsink/pkg/id"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// Policy sets the batch boundaries.
type Policy struct {
	// MaxRecords seals a batch once this many records are buffered.
	MaxRecords int
	// MaxBytes seals a batch once the buffered payload reaches this size.
	MaxBytes int
	// FlushInterval seals a non-empty batch after this much idle time.
	FlushInterval time.Duration
}

// DefaultPolicy returns the built-in batch boundaries.
func DefaultPolicy() Policy {
	return Policy{MaxRecords: 500, MaxBytes: 4 << 20, FlushInterval: time.Second}
}

// Handler receives engine callbacks.
//
// OnAddData and OnGenerateBlock are invoked with the engine lock held and
// must not call back into the engine. OnPushBlock runs outside the lock; a
// non-nil return is routed to OnError.
type Handler interface {
	OnAddData(meta any)
	OnGenerateBlock(batchID string)
	OnPushBlock(batchID string, payload []byte) error
	OnError(err error)
}

// Engine buffers records and seals them into blocks per Policy.
type Engine struct {
	pol    Policy
	h      Handler
	ids    *id.Generator
	logger logpkg.Logger

	mu    sync.Mutex
	items [][]byte
	size  int

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates an engine delivering callbacks to h.
func New(pol Policy, h Handler, logger logpkg.Logger) *Engine {
	if pol.MaxRecords <= 0 {
		pol.MaxRecords = DefaultPolicy().MaxRecords
	}
	if pol.MaxBytes <= 0 {
		pol.MaxBytes = DefaultPolicy().MaxBytes
	}
	if logger == nil {
		logger = logpkg.NewNop()
	}
	return &Engine{
		pol:    pol,
		h:      h,
		ids:    id.NewGenerator(),
		logger: logger.WithComponent("batcher"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Add appends one record without metadata.
func (e *Engine) Add(item []byte) error { return e.AddAllWithMetadata([][]byte{item}, nil) }

// AddWithMetadata appends one record with metadata.
func (e *Engine) AddWithMetadata(item []byte, meta any) error {
	return e.AddAllWithMetadata([][]byte{item}, meta)
}

// AddAllWithMetadata appends a group of records under one lock acquisition
// and delivers the metadata to OnAddData exactly once. A batch boundary
// reached during the append seals the block before the lock is released, so
// the metadata is always attributed to the batch its records land in.
func (e *Engine) AddAllWithMetadata(items [][]byte, meta any) error {
	if len(items) == 0 {
		return nil
	}
	e.mu.Lock()
	for _, it := range items {
		e.items = append(e.items, it)
		e.size += len(it)
	}
	if meta != nil {
		e.h.OnAddData(meta)
	}
	var batchID string
	var payload []byte
	if len(e.items) >= e.pol.MaxRecords || e.size >= e.pol.MaxBytes {
		batchID, payload = e.sealLocked()
	}
	e.mu.Unlock()

	if batchID != "" {
		e.push(batchID, payload)
	}
	return nil
}

// Flush seals and pushes the open batch, if any.
func (e *Engine) Flush() {
	e.mu.Lock()
	batchID, payload := e.sealLocked()
	e.mu.Unlock()
	if batchID != "" {
		e.push(batchID, payload)
	}
}

// Remaining returns the record capacity left in the open batch.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	rem := e.pol.MaxRecords - len(e.items)
	if rem < 1 {
		rem = 1
	}
	return rem
}

// Start launches the periodic flush loop. No-op when FlushInterval is zero.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		if e.pol.FlushInterval <= 0 {
			close(e.doneCh)
			return
		}
		go e.flushLoop()
	})
}

// Stop terminates the flush loop and pushes any open batch.
func (e *Engine) Stop() {
	e.Start() // ensure doneCh is owned by exactly one path
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
	e.Flush()
}

func (e *Engine) flushLoop() {
	defer close(e.doneCh)
	t := time.NewTicker(e.pol.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.Flush()
		case <-e.stopCh:
			return
		}
	}
}

// sealLocked assigns a batch id, notifies the handler, and resets the
// buffer. Caller holds e.mu.
func (e *Engine) sealLocked() (string, []byte) {
	if len(e.items) == 0 {
		return "", nil
	}
	batchID := e.ids.Next().String()
	e.h.OnGenerateBlock(batchID)
	payload := EncodeBlock(e.items)
	e.items = nil
	e.size = 0
	return batchID, payload
}

func (e *Engine) push(batchID string, payload []byte) {
	if err := e.h.OnPushBlock(batchID, payload); err != nil {
		e.logger.Error("push block failed", logpkg.Str("batch", batchID), logpkg.Err(err))
		e.h.OnError(err)
	}
}
