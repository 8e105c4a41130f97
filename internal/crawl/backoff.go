package crawl

import "time"

// Backoff is the shared retry policy applied to failing sources. Every
// source tracks its own attempt counter; the policy itself is immutable
// and safe to share.
type Backoff struct {
	// Initial is the delay after the first failure.
	Initial time.Duration

	// Multiplier grows the delay per consecutive failure.
	Multiplier float64

	// Cap bounds the delay regardless of attempt count.
	Cap time.Duration
}

// Next returns the delay for the given zero-based consecutive failure
// count. Attempt 0 yields Initial; the delay then grows geometrically
// until it reaches Cap.
func (b Backoff) Next(attempt int) time.Duration {
	d := float64(b.Initial)
	for range attempt {
		d *= b.Multiplier
		if time.Duration(d) >= b.Cap {
			return b.Cap
		}
	}
	if time.Duration(d) > b.Cap {
		return b.Cap
	}
	return time.Duration(d)
}
