package batcher

import (
	"encoding/binary"
	"hash/crc32"
)

// Block payload framing: per record, varint length | data; a trailing
// crc32c over all frames guards the whole block.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeBlock frames the records into a single block payload.
func EncodeBlock(items [][]byte) []byte {
	size := 4
	for _, it := range items {
		size += binary.MaxVarintLen64 + len(it)
	}
	out := make([]byte, 0, size)
	var tmp [binary.MaxVarintLen64]byte
	for _, it := range items {
		n := binary.PutUvarint(tmp[:], uint64(len(it)))
		out = append(out, tmp[:n]...)
		out = append(out, it...)
	}
	crc := crc32.Update(0, castagnoli, out)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

// DecodeBlock unframes a block payload. Returns false on truncation or
// checksum mismatch.
func DecodeBlock(b []byte) ([][]byte, bool) {
	if len(b) < 4 {
		return nil, false
	}
	body, tail := b[:len(b)-4], b[len(b)-4:]
	if crc32.Update(0, castagnoli, body) != binary.BigEndian.Uint32(tail) {
		return nil, false
	}
	var items [][]byte
	for len(body) > 0 {
		l, n := binary.Uvarint(body)
		if n <= 0 || int(l) > len(body)-n {
			return nil, false
		}
		items = append(items, append([]byte(nil), body[n:n+int(l)]...))
		body = body[n+int(l):]
	}
	return items, true
}
