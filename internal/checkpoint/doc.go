// Package checkpoint provides durable per-shard resume positions.
//
// A checkpoint records the newest sequence number confirmed stored for a
// shard; after a restart, consumption resumes just past it. Writes are
// monotonic: committing a sequence at or below the stored one is a no-op,
// which makes retries and late duplicate commits harmless.
//
// Two backends are provided: an embedded Pebble store colocated with the
// block data, and a Postgres table for deployments that share checkpoints
// across hosts.
package checkpoint
