// Package ingest implements the receiver core: per-call sequence-range
// accounting, batch storage with bounded retries, and per-shard checkpoint
// advancement.
//
// A Receiver sits between the shard workers and the batching engine. Each
// AddRecords call derives one SequenceRange covering the records it hands to
// the engine; when the engine seals a batch the buffered ranges are
// finalized under that batch id, consumed exactly once at store time, and on
// a successful store the newest stored sequence per shard becomes eligible
// for checkpointing. Checkpoints only ever advance to sequence numbers that
// are confirmed durable.
//
// Accounting failures (a finalized range set missing at store time, or a
// store whose attempts are exhausted) abort the receiver; the host
// supervisor is expected to restart it.
package ingest
