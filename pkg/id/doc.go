// Package id generates sortable identifiers for sealed batches.
//
// IDs are 16 bytes: a millisecond timestamp followed by a per-process
// sequence, both big-endian, so lexical order matches generation order.
package id
