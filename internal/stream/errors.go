package stream

import "errors"

// ErrThrottled marks a transient rate-limit rejection from the source.
// Callers retry these with backoff; everything else is fatal to the call.
var ErrThrottled = errors.New("stream: throttled")

// Throttler is implemented by client errors that represent rate limiting
// without wrapping ErrThrottled.
type Throttler interface{ Throttled() bool }

// Retryable reports whether err is a transient throttling error. The retry
// drivers branch on this tag instead of inspecting error hierarchies.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	var th Throttler
	return errors.As(err, &th) && th.Throttled()
}
