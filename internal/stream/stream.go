package stream

import "context"

// Record is a single stream record as delivered by the source.
type Record struct {
	ShardID      string
	Sequence     string
	PartitionKey string
	Data         []byte
}

// PositionKind selects how a cursor is anchored within a shard.
type PositionKind int

const (
	// TrimHorizon positions at the oldest available record.
	TrimHorizon PositionKind = iota
	// AtSequence positions at the record with the given sequence number.
	AtSequence
	// AfterSequence positions just past the record with the given sequence number.
	AfterSequence
)

// Position anchors a cursor within a shard.
type Position struct {
	Kind     PositionKind
	Sequence string
}

// PositionTrimHorizon returns a position at the oldest available record.
func PositionTrimHorizon() Position { return Position{Kind: TrimHorizon} }

// PositionAt returns a position at the given sequence number, inclusive.
func PositionAt(seq string) Position { return Position{Kind: AtSequence, Sequence: seq} }

// PositionAfter returns a position just past the given sequence number.
func PositionAfter(seq string) Position { return Position{Kind: AfterSequence, Sequence: seq} }

// Cursor is an opaque read position within a shard, advanced by page fetches.
type Cursor string

// Page is one fetch result: records in sequence order plus the cursor for
// the next fetch.
type Page struct {
	Records []Record
	Next    Cursor
}

// Client reads records from the source stream.
type Client interface {
	// OpenCursor returns a cursor for the shard anchored at pos.
	OpenCursor(ctx context.Context, streamName, shardID string, pos Position) (Cursor, error)
	// GetPage fetches up to limit records at the cursor.
	GetPage(ctx context.Context, cursor Cursor, limit int) (Page, error)
	// Close releases the client's resources.
	Close() error
}

// DialFunc creates a Client. Callers that hand out DialFuncs keep connection
// setup out of the consuming component; the consumer owns the returned
// client's lifetime.
type DialFunc func(ctx context.Context) (Client, error)
