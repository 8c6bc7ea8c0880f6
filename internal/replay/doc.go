// Package replay re-fetches a previously consumed sequence-number range
// directly from the source stream, bypassing local storage.
//
// A replay is a one-shot, forward-only iteration over exactly the saved
// range: open a cursor at the lower bound, page forward, and stop once the
// upper bound has been yielded. Cursor opens and page fetches run under a
// retry policy that backs off exponentially on throttling and is bounded by
// both a retry count and an elapsed-time window; any non-throttling error
// aborts immediately. The iterator owns its stream client and releases it on
// every exit path.
//
// Usage follows the storage iterators:
//
//	it := replay.New(ctx, dial, pol, req)
//	defer it.Close()
//	for it.Next() {
//	    rec := it.Record()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
package replay
