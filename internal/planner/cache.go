package planner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/schedule"
)

const (
	cacheTTL = 5 * time.Minute

	// Per-user entry caps. A week of browsing back and forth stays warm
	// without the cache growing unbounded.
	dayCapacity  = 14
	weekCapacity = 4
)

type rangeKind int

const (
	kindDay rangeKind = iota
	kindWeek
)

type cacheKey struct {
	userID uuid.UUID
	kind   rangeKind
	start  string
}

type cacheEntry struct {
	occurrences []schedule.Occurrence
	fetchedAt   time.Time
}

// rangeCache holds resolved occurrence ranges per user. Entries expire
// after a TTL and the oldest entry of a kind is evicted when a user
// exceeds that kind's capacity.
//
// Each user carries a generation counter, bumped on every invalidation.
// A fetch captures the generation before hitting the database and the
// result is discarded on store if the generation moved in the meantime,
// so a slow read can never resurrect stale data over a newer write.
type rangeCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	gens    map[uuid.UUID]uint64
	now     func() time.Time
}

func newRangeCache() *rangeCache {
	return &rangeCache{
		entries: make(map[cacheKey]*cacheEntry),
		gens:    make(map[uuid.UUID]uint64),
		now:     time.Now,
	}
}

func (c *rangeCache) generation(userID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID]
}

func (c *rangeCache) get(key cacheKey) ([]schedule.Occurrence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) > cacheTTL {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]schedule.Occurrence, len(e.occurrences))
	copy(out, e.occurrences)
	return out, true
}

// put stores a fetched range unless the user's generation moved since
// the fetch began.
func (c *rangeCache) put(key cacheKey, occs []schedule.Occurrence, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key.userID] != gen {
		return
	}
	c.entries[key] = &cacheEntry{occurrences: occs, fetchedAt: c.now()}
	c.evict(key.userID, key.kind)
}

// evict drops the oldest entries of a kind until the user is back
// within capacity. Caller holds the lock.
func (c *rangeCache) evict(userID uuid.UUID, kind rangeKind) {
	capacity := dayCapacity
	if kind == kindWeek {
		capacity = weekCapacity
	}
	for {
		var (
			count  int
			oldest cacheKey
			oldt   time.Time
		)
		for k, e := range c.entries {
			if k.userID != userID || k.kind != kind {
				continue
			}
			count++
			if oldt.IsZero() || e.fetchedAt.Before(oldt) {
				oldest = k
				oldt = e.fetchedAt
			}
		}
		if count <= capacity {
			return
		}
		delete(c.entries, oldest)
	}
}

// invalidate bumps the user's generation and drops all their entries.
func (c *rangeCache) invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[userID]++
	for k := range c.entries {
		if k.userID == userID {
			delete(c.entries, k)
		}
	}
}

// mutate applies fn to every cached occurrence belonging to the user,
// in place. Used for optimistic updates so a toggle is visible on the
// next read without a refetch.
func (c *rangeCache) mutate(userID uuid.UUID, fn func(*schedule.Occurrence)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if k.userID != userID {
			continue
		}
		for i := range e.occurrences {
			fn(&e.occurrences[i])
		}
	}
}
