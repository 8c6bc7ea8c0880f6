package blockstore

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - bs/{stream}/batch/{id}/p    block payload
// - bs/{stream}/batch/{id}/r    JSON-encoded range set
// - bs/{stream}/shard/{shard}/last

var (
	sep           = byte('/')
	storePrefix   = []byte("bs/")
	batchSeg      = []byte("/batch/")
	shardSeg      = []byte("/shard/")
	payloadSuffix = []byte("/p")
	rangesSuffix  = []byte("/r")
	lastSuffix    = []byte("/last")
)

func keyBatchBase(streamName, batchID string) []byte {
	k := make([]byte, 0, len(streamName)+len(batchID)+16)
	k = append(k, storePrefix...)
	k = append(k, streamName...)
	k = append(k, batchSeg...)
	k = append(k, batchID...)
	return k
}

// KeyBatchPayload builds the payload key for a batch.
func KeyBatchPayload(streamName, batchID string) []byte {
	return append(keyBatchBase(streamName, batchID), payloadSuffix...)
}

// KeyBatchRanges builds the range-set key for a batch.
func KeyBatchRanges(streamName, batchID string) []byte {
	return append(keyBatchBase(streamName, batchID), rangesSuffix...)
}

// KeyShardLast builds the per-shard last-stored-sequence key.
func KeyShardLast(streamName, shardID string) []byte {
	k := make([]byte, 0, len(streamName)+len(shardID)+20)
	k = append(k, storePrefix...)
	k = append(k, streamName...)
	k = append(k, shardSeg...)
	k = append(k, shardID...)
	k = append(k, lastSuffix...)
	return k
}

// KeyBatchPrefix returns the range prefix to scan all batch keys for a stream.
func KeyBatchPrefix(streamName string) []byte {
	k := make([]byte, 0, len(streamName)+12)
	k = append(k, storePrefix...)
	k = append(k, streamName...)
	k = append(k, batchSeg...)
	return k
}
