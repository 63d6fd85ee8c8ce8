package dedupe

import "time"

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithMaxSize sets the maximum number of claims kept in memory.
// If maxSize > 0: bounded mode, the oldest claim is evicted.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(g *inMemoryGuard) {
		g.maxSize = maxSize
	}
}

// WithTTL expires claims after ttl so a crashed owner cannot block a
// submission forever.
func WithTTL(ttl time.Duration) Option {
	return func(g *inMemoryGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(g *inMemoryGuard) {
		if now != nil {
			g.now = now
		}
	}
}
