// Package blockstore persists sealed ingestion batches in Pebble.
//
// Each batch lands as one atomic write: the encoded block payload, the JSON
// range set accounting which shard slices it contains, and an advanced
// per-shard last-stored marker. Batch ids are time-ordered, so a key-order
// scan lists batches in seal order.
package blockstore
