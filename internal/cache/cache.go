// Package cache holds recently generated insights in process memory, keyed by
// user and period. Entries expire after a TTL and are evicted lazily when a
// lookup finds them stale; there is no background sweeper.
package cache

import (
	"sync"
	"time"

	"github.com/tbourn/go-insights-backend/internal/domain"
)

// DefaultTTL is the lifetime of an entry when New is given a non-positive TTL.
const DefaultTTL = 24 * time.Hour

type entry struct {
	value     *domain.Insight
	createdAt time.Time
}

// InsightCache is safe for concurrent use. Entries are grouped by user so
// per-user clears compare the user id exactly.
type InsightCache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]map[string]entry // user -> period -> entry

	// Now is the clock; tests may replace it.
	Now func() time.Time
}

// New returns an empty cache with the given TTL.
func New(ttl time.Duration) *InsightCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InsightCache{ttl: ttl, m: map[string]map[string]entry{}, Now: time.Now}
}

// Key formats the lookup key "user:YYYY-MM-DD:YYYY-MM-DD".
func Key(userID string, start, end time.Time) string {
	return userID + ":" + periodKey(start, end)
}

func periodKey(start, end time.Time) string {
	return start.Format(time.DateOnly) + ":" + end.Format(time.DateOnly)
}

// Get returns the cached insight for the period, or nil on a miss. An entry
// older than the TTL is removed and reported as a miss.
func (c *InsightCache) Get(userID string, start, end time.Time) *domain.Insight {
	pk := periodKey(start, end)
	c.mu.Lock()
	defer c.mu.Unlock()
	periods := c.m[userID]
	e, ok := periods[pk]
	if !ok {
		return nil
	}
	if c.Now().Sub(e.createdAt) > c.ttl {
		delete(periods, pk)
		if len(periods) == 0 {
			delete(c.m, userID)
		}
		return nil
	}
	return e.value
}

// Put stores v under the period key, replacing any previous entry.
func (c *InsightCache) Put(userID string, start, end time.Time, v *domain.Insight) {
	if v == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	periods, ok := c.m[userID]
	if !ok {
		periods = map[string]entry{}
		c.m[userID] = periods
	}
	periods[periodKey(start, end)] = entry{value: v, createdAt: c.Now()}
}

// ClearUser drops every entry belonging to userID and returns how many were
// removed.
func (c *InsightCache) ClearUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.m[userID])
	delete(c.m, userID)
	return n
}

// ClearAll empties the cache.
func (c *InsightCache) ClearAll() {
	c.mu.Lock()
	c.m = map[string]map[string]entry{}
	c.mu.Unlock()
}

// Len reports the number of stored entries, including any not yet evicted.
func (c *InsightCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, periods := range c.m {
		n += len(periods)
	}
	return n
}
