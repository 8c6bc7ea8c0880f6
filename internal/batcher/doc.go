// Package batcher implements the bounded batching engine.
//
// Records are appended with optional metadata and sealed into blocks when a
// record-count or byte threshold trips, or when the flush interval elapses.
// The OnAddData and OnGenerateBlock callbacks run while the engine lock is
// held, so a handler's per-batch bookkeeping (buffer appends and the
// buffer-to-batch swap) cannot interleave with concurrent adds. Sealed
// payloads are pushed via OnPushBlock outside the lock.
package batcher
