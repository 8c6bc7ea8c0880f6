package stream

// CompareSequences orders two opaque sequence numbers from the same shard.
// Sequence numbers are decimal strings without leading zeros, so a longer
// string is always larger; equal lengths compare lexically. Returns -1, 0, 1.
func CompareSequences(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
