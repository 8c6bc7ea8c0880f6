package memstream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rzbill/shardsink/internal/stream"
)

// Stream is an in-memory shard stream. Records are held per stream/shard in
// append order, which for well-formed sources equals sequence order.
type Stream struct {
	mu     sync.RWMutex
	shards map[string][]stream.Record
}

// New returns an empty in-memory stream.
func New() *Stream {
	return &Stream{shards: map[string][]stream.Record{}}
}

// Append adds records to the tail of a shard.
func (s *Stream) Append(streamName, shardID string, recs ...stream.Record) {
	if len(recs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := shardKey(streamName, shardID)
	for _, r := range recs {
		r.ShardID = shardID
		s.shards[key] = append(s.shards[key], r)
	}
}

// Shards lists the shard ids present for a stream.
func (s *Stream) Shards(streamName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := streamName + "\x00"
	var out []string
	for k := range s.shards {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	return out
}

// Client returns a stream.Client view over this stream. Multiple clients may
// coexist; Close is a no-op so the backing data survives replay sessions.
func (s *Stream) Client() stream.Client { return &client{s: s} }

// Dial adapts the stream to a stream.DialFunc.
func (s *Stream) Dial() stream.DialFunc {
	return func(ctx context.Context) (stream.Client, error) { return s.Client(), nil }
}

func shardKey(streamName, shardID string) string { return streamName + "\x00" + shardID }

type client struct{ s *Stream }

func (c *client) OpenCursor(ctx context.Context, streamName, shardID string, pos stream.Position) (stream.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.s.mu.RLock()
	recs, ok := c.s.shards[shardKey(streamName, shardID)]
	c.s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("memstream: unknown shard %s/%s", streamName, shardID)
	}

	idx := 0
	switch pos.Kind {
	case stream.TrimHorizon:
		// idx stays 0
	case stream.AtSequence:
		idx = seekGE(recs, pos.Sequence)
	case stream.AfterSequence:
		idx = seekGE(recs, pos.Sequence)
		if idx < len(recs) && recs[idx].Sequence == pos.Sequence {
			idx++
		}
	default:
		return "", fmt.Errorf("memstream: unsupported position kind %d", pos.Kind)
	}
	return encodeCursor(streamName, shardID, idx), nil
}

func (c *client) GetPage(ctx context.Context, cursor stream.Cursor, limit int) (stream.Page, error) {
	if err := ctx.Err(); err != nil {
		return stream.Page{}, err
	}
	streamName, shardID, idx, err := decodeCursor(cursor)
	if err != nil {
		return stream.Page{}, err
	}
	c.s.mu.RLock()
	recs := c.s.shards[shardKey(streamName, shardID)]
	c.s.mu.RUnlock()

	if idx > len(recs) {
		idx = len(recs)
	}
	end := len(recs)
	if limit > 0 && idx+limit < end {
		end = idx + limit
	}
	page := stream.Page{
		Records: append([]stream.Record(nil), recs[idx:end]...),
		Next:    encodeCursor(streamName, shardID, end),
	}
	return page, nil
}

func (c *client) Close() error { return nil }

// seekGE returns the index of the first record with sequence >= seq.
func seekGE(recs []stream.Record, seq string) int {
	for i, r := range recs {
		if stream.CompareSequences(r.Sequence, seq) >= 0 {
			return i
		}
	}
	return len(recs)
}

func encodeCursor(streamName, shardID string, idx int) stream.Cursor {
	return stream.Cursor(streamName + "\x00" + shardID + "\x00" + strconv.Itoa(idx))
}

func decodeCursor(c stream.Cursor) (streamName, shardID string, idx int, err error) {
	parts := strings.SplitN(string(c), "\x00", 3)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("memstream: malformed cursor %q", string(c))
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("memstream: malformed cursor offset: %w", err)
	}
	return parts[0], parts[1], n, nil
}
