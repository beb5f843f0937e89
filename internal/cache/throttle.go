package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultRefreshInterval is the minimum gap between two refreshes of the
// same key.
const DefaultRefreshInterval = 1500 * time.Millisecond

// Throttle rejects a refresh of a key that was last refreshed less than
// interval ago. Callers Record in a defer so a failed fetch still counts.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle returns a Throttle; interval <= 0 uses DefaultRefreshInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Throttle{
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether key may be refreshed now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[key]
	return !ok || t.now().Sub(last) >= t.interval
}

// Acquire is Allow plus Record in one step: it reports whether the refresh
// may start and, if so, claims the slot so a concurrent caller is refused.
func (t *Throttle) Acquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

// Record stamps key as refreshed now.
func (t *Throttle) Record(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key] = t.now()
}

// Forget drops the timestamp for key.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key)
}

// ForgetPrefix drops the timestamps of every key starting with prefix.
func (t *Throttle) ForgetPrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.last {
		if strings.HasPrefix(key, prefix) {
			delete(t.last, key)
		}
	}
}
