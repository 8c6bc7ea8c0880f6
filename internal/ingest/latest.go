package ingest

import "sync"

// latestStored maps shardID to the newest sequence number confirmed durable
// by a completed store. Updated in store-completion order; read by the
// checkpoint path without holding the lock across a full cycle (checkpoints
// are monotonic, staleness is harmless).
type latestStored struct {
	mu sync.RWMutex
	m  map[string]string
}

func newLatestStored() *latestStored { return &latestStored{m: map[string]string{}} }

func (l *latestStored) set(shardID, seq string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[shardID] = seq
}

func (l *latestStored) get(shardID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seq, ok := l.m[shardID]
	return seq, ok
}
