package compiler

import (
	"sync"
	"sync/atomic"
)

// Plan is a cached compilation result. Plans are immutable once stored.
type Plan struct {
	SQL string
	// Static is set when every bound value came from an inline constant.
	Static bool
	// Values are the bound values of a static plan.
	Values []any
	// Digest is the structural digest used to detect fingerprint
	// collisions; empty unless collision checking is enabled.
	Digest string
}

// PlanStats reports plan cache activity.
type PlanStats struct {
	Hits       int64
	Misses     int64
	Collisions int64
	Size       int
}

// PlanCache maps fingerprints to compiled plans. It is safe for concurrent
// use; concurrent inserts for the same fingerprint are last-write-wins.
type PlanCache struct {
	mu       sync.RWMutex
	plans    map[uint64]*Plan
	capacity int

	hits       atomic.Int64
	misses     atomic.Int64
	collisions atomic.Int64
}

// NewPlanCache creates a plan cache holding at most capacity plans; zero
// means unbounded.
func NewPlanCache(capacity int) *PlanCache {
	return &PlanCache{
		plans:    make(map[uint64]*Plan),
		capacity: capacity,
	}
}

// Get returns the plan stored for fingerprint.
func (c *PlanCache) Get(fingerprint uint64) (*Plan, bool) {
	c.mu.RLock()
	plan, ok := c.plans[fingerprint]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return plan, ok
}

// Put stores plan under fingerprint. When the cache is full an arbitrary
// plan is evicted.
func (c *PlanCache) Put(fingerprint uint64, plan *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.plans[fingerprint]; !exists && c.capacity > 0 && len(c.plans) >= c.capacity {
		for k := range c.plans {
			delete(c.plans, k)
			break
		}
	}
	c.plans[fingerprint] = plan
}

// Clear removes all plans.
func (c *PlanCache) Clear() {
	c.mu.Lock()
	c.plans = make(map[uint64]*Plan)
	c.mu.Unlock()
}

// Stats returns the cache counters.
func (c *PlanCache) Stats() PlanStats {
	c.mu.RLock()
	size := len(c.plans)
	c.mu.RUnlock()
	return PlanStats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Collisions: c.collisions.Load(),
		Size:       size,
	}
}

func (c *PlanCache) recordCollision() { c.collisions.Add(1) }
