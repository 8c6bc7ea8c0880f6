package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/shardsink/internal/stream"
	logpkg "github.com/rzbill/shardsink/pkg/log"
)

// maxPageSize caps a single page fetch.
const maxPageSize = 10000

// ErrRangeExhausted reports that the source stopped yielding records before
// the requested upper bound was reached. The range is no longer fully
// replayable, typically because the source trimmed it.
var ErrRangeExhausted = errors.New("replay: range exhausted before upper bound")

// Request names the saved range to replay. Bounds are inclusive; Count is the
// number of records originally accounted to the range and bounds how many the
// iterator will fetch.
type Request struct {
	Stream  string
	ShardID string
	FromSeq string
	ToSeq   string
	Count   int
}

type iterState int

const (
	stateStart iterState = iota
	stateFetching
	stateHasPage
	stateDone
	stateFailed
)

// Iterator walks a saved range record by record. Not safe for concurrent use.
type Iterator struct {
	ctx    context.Context
	dial   stream.DialFunc
	pol    Policy
	req    Request
	logger logpkg.Logger

	client    stream.Client
	cursor    stream.Cursor
	page      []stream.Record
	pos       int
	remaining int
	hitBound  bool
	state     iterState
	err       error
	closed    bool
}

// New returns an iterator over the requested range. The stream client is
// dialed lazily on the first Next call and released when iteration ends.
func New(ctx context.Context, dial stream.DialFunc, pol Policy, req Request) *Iterator {
	return NewWithLogger(ctx, dial, pol, req, logpkg.NewNop())
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(ctx context.Context, dial stream.DialFunc, pol Policy, req Request, logger logpkg.Logger) *Iterator {
	return &Iterator{
		ctx:       ctx,
		dial:      dial,
		pol:       pol,
		req:       req,
		logger:    logger.WithComponent("replay"),
		remaining: req.Count,
		state:     stateStart,
	}
}

// Next advances to the next record, fetching pages as needed. It returns
// false once the upper bound has been yielded, the range is exhausted, or an
// error occurred; consult Err afterwards.
func (it *Iterator) Next() bool {
	for {
		switch it.state {
		case stateDone, stateFailed:
			return false
		case stateHasPage:
			if it.hitBound {
				it.finish(nil)
				return false
			}
			it.pos++
			if it.pos < len(it.page) {
				if it.yieldCurrent() {
					return true
				}
				continue
			}
			it.state = stateFetching
		case stateStart:
			if err := it.open(); err != nil {
				it.fail(err)
				return false
			}
			it.state = stateFetching
		case stateFetching:
			if it.hitBound {
				it.finish(nil)
				return false
			}
			// Budget spent without the bound in hand: the range cannot be
			// completed.
			if it.remaining <= 0 {
				it.finish(ErrRangeExhausted)
				return false
			}
			page, err := it.fetch()
			if err != nil {
				it.fail(err)
				return false
			}
			if len(page.Records) == 0 {
				it.finish(ErrRangeExhausted)
				return false
			}
			it.cursor = page.Next
			it.page = page.Records
			it.pos = 0
			it.state = stateHasPage
			if it.yieldCurrent() {
				return true
			}
		}
	}
}

// yieldCurrent accounts the record at pos and reports whether it belongs to
// the range. A record past the upper bound means the source skipped over it,
// so the range can no longer be completed.
func (it *Iterator) yieldCurrent() bool {
	rec := it.page[it.pos]
	if stream.CompareSequences(rec.Sequence, it.req.ToSeq) > 0 {
		it.finish(ErrRangeExhausted)
		return false
	}
	it.remaining--
	if stream.CompareSequences(rec.Sequence, it.req.ToSeq) == 0 {
		// The bound is in hand; the next pull ends without another fetch.
		it.hitBound = true
	}
	return true
}

// Record returns the current record. Valid only after Next returned true.
func (it *Iterator) Record() stream.Record {
	return it.page[it.pos]
}

// Err returns the error that ended iteration, if any. ErrRangeExhausted
// means the source ran out before the upper bound.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the stream client. Safe to call more than once and after
// iteration already ended.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.state != stateDone && it.state != stateFailed {
		it.state = stateDone
	}
	return it.release()
}

func (it *Iterator) open() error {
	client, err := it.dial(it.ctx)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	it.client = client

	pos := stream.PositionAt(it.req.FromSeq)
	err = retry(it.ctx, it.pol, func() error {
		cursor, err := it.client.OpenCursor(it.ctx, it.req.Stream, it.req.ShardID, pos)
		if err != nil {
			return err
		}
		it.cursor = cursor
		return nil
	})
	if err != nil {
		return fmt.Errorf("open cursor %s/%s at %s: %w", it.req.Stream, it.req.ShardID, it.req.FromSeq, err)
	}
	it.logger.Debug("replay cursor open",
		logpkg.Str("stream", it.req.Stream),
		logpkg.Str("shard", it.req.ShardID),
		logpkg.Str("from", it.req.FromSeq),
		logpkg.Str("to", it.req.ToSeq))
	return nil
}

func (it *Iterator) fetch() (stream.Page, error) {
	limit := it.remaining
	if limit > maxPageSize {
		limit = maxPageSize
	}
	var page stream.Page
	err := retry(it.ctx, it.pol, func() error {
		p, err := it.client.GetPage(it.ctx, it.cursor, limit)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return stream.Page{}, fmt.Errorf("fetch page %s/%s: %w", it.req.Stream, it.req.ShardID, err)
	}
	return page, nil
}

func (it *Iterator) finish(err error) {
	if err != nil {
		it.err = err
		it.state = stateFailed
	} else {
		it.state = stateDone
	}
	if rerr := it.release(); rerr != nil && it.err == nil {
		it.err = rerr
	}
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.state = stateFailed
	if rerr := it.release(); rerr != nil {
		it.logger.Warn("client release failed", logpkg.Err(rerr))
	}
}

func (it *Iterator) release() error {
	if it.client == nil {
		return nil
	}
	c := it.client
	it.client = nil
	return c.Close()
}
