// Package pebblestore wraps Pebble with the fsync policy and helpers used by
// shardsink's block store and checkpointers.
package pebblestore
