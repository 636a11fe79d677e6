package nav

import (
	"sync"
	"sync/atomic"
	"time"
)

// BuildStatus is the per-goal state surfaced to the order layer, which
// decides whether to keep, retry, or cancel a movement order.
type BuildStatus string

const (
	StatusReady       BuildStatus = "ready"
	StatusUnreachable BuildStatus = "unreachable"
	StatusPending     BuildStatus = "pending"
)

type cacheEntry struct {
	field          *FlowField
	err            error
	gridVersion    uint64
	densityVersion uint64
	done           chan struct{}
}

// FlowFieldCache maps goal cells to built flowfields. Every group whose
// order targets the same goal cell shares one entry, which is the
// dominant cost saving over per-agent search.
//
// Entries are stamped with the grid and density versions they were built
// against; a lookup whose stamps still match returns the cached field
// without recomputation. Concurrent lookups for the same stale goal are
// deduplicated into a single in-flight build that the rest wait on.
type FlowFieldCache struct {
	grid          *Grid
	density       *DensityField
	densityWeight float64

	mu      sync.Mutex
	entries map[Cell]*cacheEntry
	builds  atomic.Uint64
	onBuild func(goal Cell, elapsed time.Duration, builds uint64)
}

// NewFlowFieldCache wires a cache over the given grid and density field.
func NewFlowFieldCache(grid *Grid, density *DensityField, densityWeight float64) *FlowFieldCache {
	return &FlowFieldCache{
		grid:          grid,
		density:       density,
		densityWeight: densityWeight,
		entries:       make(map[Cell]*cacheEntry),
	}
}

// OnBuild registers a hook invoked after each completed build with the
// build duration and the running build count. Must be set during wiring,
// before the cache sees concurrent traffic.
func (c *FlowFieldCache) OnBuild(fn func(goal Cell, elapsed time.Duration, builds uint64)) {
	if c == nil {
		return
	}
	c.onBuild = fn
}

// Builds returns how many flowfield builds have actually run, which lets
// tests observe cache hits directly.
func (c *FlowFieldCache) Builds() uint64 {
	if c == nil {
		return 0
	}
	return c.builds.Load()
}

// Get returns the flowfield for goal, building it if the cache has no
// entry or the entry's stamps no longer match the grid and density
// versions. Blocks until the (possibly shared) build completes. Returns
// ErrUnreachableGoal for blocked goals.
func (c *FlowFieldCache) Get(goal Cell) (*FlowField, error) {
	if c == nil {
		return nil, ErrUnreachableGoal
	}
	gridVersion := c.grid.Version()
	densityVersion := c.density.Version()

	c.mu.Lock()
	entry, ok := c.entries[goal]
	if ok {
		select {
		case <-entry.done:
			if entry.gridVersion == gridVersion && entry.densityVersion == densityVersion {
				c.mu.Unlock()
				return entry.field, entry.err
			}
			// Stale stamps; fall through and rebuild.
		default:
			// Build in flight for the current stamps; wait on it.
			c.mu.Unlock()
			<-entry.done
			return entry.field, entry.err
		}
	}
	entry = &cacheEntry{
		gridVersion:    gridVersion,
		densityVersion: densityVersion,
		done:           make(chan struct{}),
	}
	c.entries[goal] = entry
	c.mu.Unlock()

	start := time.Now()
	entry.field, entry.err = BuildFlowField(c.grid, c.density, c.densityWeight, goal)
	builds := c.builds.Add(1)
	if c.onBuild != nil {
		c.onBuild(goal, time.Since(start), builds)
	}
	close(entry.done)
	return entry.field, entry.err
}

// Status reports the build state for goal without triggering a build.
func (c *FlowFieldCache) Status(goal Cell) BuildStatus {
	if c == nil {
		return StatusPending
	}
	c.mu.Lock()
	entry, ok := c.entries[goal]
	c.mu.Unlock()
	if !ok {
		return StatusPending
	}
	select {
	case <-entry.done:
		if entry.err != nil {
			return StatusUnreachable
		}
		return StatusReady
	default:
		return StatusPending
	}
}

// Invalidate drops every cached entry. Stamp comparison already catches
// staleness lazily; this exists for explicit resets (world reload).
func (c *FlowFieldCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[Cell]*cacheEntry)
	c.mu.Unlock()
}
