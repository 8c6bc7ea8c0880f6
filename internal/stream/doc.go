// Package stream defines the contract with the source shard stream.
//
// A stream is partitioned into shards. Each shard assigns opaque, decimal,
// monotonically increasing sequence numbers to its records. Reads go through
// a cursor: open one at a position, then page forward. Implementations live
// elsewhere (memstream for tests and tooling); consumers program against the
// Client interface.
package stream
