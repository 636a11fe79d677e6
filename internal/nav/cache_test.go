package nav

import (
	"errors"
	"sync"
	"testing"
)

func newTestCache() (*Grid, *DensityField, *FlowFieldCache) {
	grid := NewGrid(8, 8, 1)
	density := NewDensityField(8, 8, 8, 0.5)
	return grid, density, NewFlowFieldCache(grid, density, 0.4)
}

func TestCacheReturnsSameInstanceWhileStampsMatch(t *testing.T) {
	_, _, cache := newTestCache()
	goal := Cell{Col: 4, Row: 4}

	first, err := cache.Get(goal)
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.Get(goal)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the cached instance back")
	}
	if got := cache.Builds(); got != 1 {
		t.Fatalf("build count = %d, want 1", got)
	}
}

func TestCacheRebuildsAfterGridEdit(t *testing.T) {
	grid, _, cache := newTestCache()
	goal := Cell{Col: 4, Row: 4}

	if _, err := cache.Get(goal); err != nil {
		t.Fatal(err)
	}
	grid.SetWalkable(Cell{Col: 1, Row: 1}, false)
	if _, err := cache.Get(goal); err != nil {
		t.Fatal(err)
	}
	if got := cache.Builds(); got != 2 {
		t.Fatalf("build count after grid edit = %d, want 2", got)
	}
}

func TestCacheRebuildsAfterDensityRefresh(t *testing.T) {
	grid, density, cache := newTestCache()
	goal := Cell{Col: 4, Row: 4}

	if _, err := cache.Get(goal); err != nil {
		t.Fatal(err)
	}
	density.Refresh(grid, []Vec2{{X: 2.5, Y: 2.5}})
	if _, err := cache.Get(goal); err != nil {
		t.Fatal(err)
	}
	if got := cache.Builds(); got != 2 {
		t.Fatalf("build count after density refresh = %d, want 2", got)
	}
}

func TestCacheSharesOneBuildAcrossConcurrentRequests(t *testing.T) {
	_, _, cache := newTestCache()
	goal := Cell{Col: 2, Row: 6}

	var wg sync.WaitGroup
	fields := make([]*FlowField, 16)
	for i := range fields {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			field, err := cache.Get(goal)
			if err != nil {
				t.Errorf("concurrent Get: %v", err)
				return
			}
			fields[slot] = field
		}(i)
	}
	wg.Wait()

	if got := cache.Builds(); got != 1 {
		t.Fatalf("concurrent build count = %d, want 1", got)
	}
	for i, field := range fields {
		if field != fields[0] {
			t.Fatalf("request %d received a different instance", i)
		}
	}
}

func TestCacheStatus(t *testing.T) {
	grid, _, cache := newTestCache()

	if got := cache.Status(Cell{Col: 3, Row: 3}); got != StatusPending {
		t.Fatalf("status before any request = %q, want pending", got)
	}

	blocked := Cell{Col: 0, Row: 0}
	grid.SetWalkable(blocked, false)
	if _, err := cache.Get(blocked); !errors.Is(err, ErrUnreachableGoal) {
		t.Fatalf("expected ErrUnreachableGoal, got %v", err)
	}
	if got := cache.Status(blocked); got != StatusUnreachable {
		t.Fatalf("status for blocked goal = %q, want unreachable", got)
	}

	open := Cell{Col: 5, Row: 5}
	if _, err := cache.Get(open); err != nil {
		t.Fatal(err)
	}
	if got := cache.Status(open); got != StatusReady {
		t.Fatalf("status for built goal = %q, want ready", got)
	}
}
