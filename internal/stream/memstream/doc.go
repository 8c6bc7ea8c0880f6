// Package memstream is an in-memory stream.Client used by tests and the
// replay CLI. Cursors encode the stream, shard, and offset; pages are served
// straight from the seeded slices.
package memstream
