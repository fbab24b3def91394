package walletid

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a resolved handler stays cached before the
// installed-app enumeration runs again.
const DefaultCacheTTL = 5 * time.Second

// TTLCache holds one value with an explicit timestamp and TTL. It exists so
// the resolved-handler cache is visible state with explicit invalidation
// rather than an ambient static.
type TTLCache[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	at    time.Time
	ttl   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewTTLCache creates a cache with the given TTL (DefaultCacheTTL if zero).
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &TTLCache[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value and whether it is still fresh.
func (c *TTLCache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || c.now().Sub(c.at) > c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

// Set stores a value and stamps it. Last writer wins.
func (c *TTLCache[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.set = true
	c.at = c.now()
}

// Invalidate drops the cached value.
func (c *TTLCache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.set = false
}
