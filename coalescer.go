package auth

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshCoalescer deduplicates concurrent refresh calls that present the
// same token, keyed by fingerprint so raw tokens never sit in memory as map
// keys. It is a per-process optimization in front of RotationCoordinator;
// correctness across instances rests on the database transaction and row
// lock, not on this cache.
type RefreshCoalescer struct {
	group  singleflight.Group
	window time.Duration
	nowFn  func() time.Time

	mu     sync.Mutex
	recent map[string]cachedRefresh
}

type cachedRefresh struct {
	pair *TokenPair
	at   time.Time
}

// NewRefreshCoalescer creates a coalescer with the given idempotency window.
func NewRefreshCoalescer(window time.Duration) *RefreshCoalescer {
	return &RefreshCoalescer{
		window: window,
		nowFn:  time.Now,
		recent: map[string]cachedRefresh{},
	}
}

// WithClock overrides the time source for tests.
func (c *RefreshCoalescer) WithClock(nowFn func() time.Time) *RefreshCoalescer {
	if nowFn != nil {
		c.nowFn = nowFn
	}
	return c
}

// Do returns a recent successful outcome for the fingerprint if one exists
// inside the idempotency window, otherwise runs invoke, sharing a single
// in-flight execution among concurrent callers. Failures are never cached,
// so a failed call can be retried immediately.
func (c *RefreshCoalescer) Do(fingerprint string, invoke func() (*TokenPair, error)) (*TokenPair, error) {
	if pair, ok := c.lookup(fingerprint); ok {
		return pair, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		if pair, ok := c.lookup(fingerprint); ok {
			return pair, nil
		}

		pair, err := invoke()
		if err != nil {
			return nil, err
		}

		c.store(fingerprint, pair)
		return pair, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*TokenPair), nil
}

func (c *RefreshCoalescer) lookup(fingerprint string) (*TokenPair, bool) {
	now := c.nowFn()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistic eviction keeps the map bounded by the window; there is
	// no background sweeper.
	for key, entry := range c.recent {
		if now.Sub(entry.at) > c.window {
			delete(c.recent, key)
		}
	}

	entry, ok := c.recent[fingerprint]
	if !ok {
		return nil, false
	}

	return entry.pair, true
}

func (c *RefreshCoalescer) store(fingerprint string, pair *TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recent[fingerprint] = cachedRefresh{pair: pair, at: c.nowFn()}
}
