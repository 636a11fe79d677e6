package nav

import (
	"math"
	"testing"
)

func TestGridOutOfBoundsReadsBlocked(t *testing.T) {
	grid := NewGrid(4, 4, 1)

	for _, cell := range []Cell{{Col: -1, Row: 0}, {Col: 0, Row: -1}, {Col: 4, Row: 0}, {Col: 0, Row: 4}} {
		got := grid.Cell(cell)
		if got.Walkable {
			t.Fatalf("expected %+v to read blocked", cell)
		}
		if !math.IsInf(got.TerrainCost, 1) {
			t.Fatalf("expected infinite cost for %+v, got %f", cell, got.TerrainCost)
		}
	}
}

func TestGridVersionBumpsOnEveryMutation(t *testing.T) {
	grid := NewGrid(4, 4, 1)
	if grid.Version() != 0 {
		t.Fatalf("fresh grid version = %d, want 0", grid.Version())
	}

	grid.SetWalkable(Cell{Col: 1, Row: 1}, false)
	if grid.Version() != 1 {
		t.Fatalf("version after block = %d, want 1", grid.Version())
	}
	grid.SetTerrainCost(Cell{Col: 2, Row: 2}, 3.5)
	if grid.Version() != 2 {
		t.Fatalf("version after cost change = %d, want 2", grid.Version())
	}

	// Out-of-bounds writes are ignored and do not invalidate caches.
	grid.SetWalkable(Cell{Col: 99, Row: 99}, false)
	if grid.Version() != 2 {
		t.Fatalf("version after out-of-bounds write = %d, want 2", grid.Version())
	}
}

func TestGridTerrainCostClamping(t *testing.T) {
	grid := NewGrid(4, 4, 1)

	grid.SetTerrainCost(Cell{Col: 0, Row: 0}, 0.25)
	if got := grid.Cell(Cell{Col: 0, Row: 0}).TerrainCost; got != 1 {
		t.Fatalf("sub-unit cost clamped to %f, want 1", got)
	}

	grid.SetTerrainCost(Cell{Col: 1, Row: 0}, math.Inf(1))
	if grid.Cell(Cell{Col: 1, Row: 0}).Walkable {
		t.Fatal("infinite cost should block the cell")
	}

	grid.SetWalkable(Cell{Col: 1, Row: 0}, true)
	if got := grid.Cell(Cell{Col: 1, Row: 0}); !got.Walkable || got.TerrainCost != 1 {
		t.Fatalf("unblocked cell = %+v, want walkable with unit cost", got)
	}
}

func TestGridLocate(t *testing.T) {
	grid := NewGrid(8, 8, 2)

	cell, ok := grid.Locate(Vec2{X: 3.9, Y: 0.1})
	if !ok || cell != (Cell{Col: 1, Row: 0}) {
		t.Fatalf("Locate = %+v ok=%v, want {1 0} true", cell, ok)
	}
	if _, ok := grid.Locate(Vec2{X: -0.1, Y: 1}); ok {
		t.Fatal("negative position should not locate")
	}
	if got := grid.LocateClamped(Vec2{X: 999, Y: -5}); got != (Cell{Col: 7, Row: 0}) {
		t.Fatalf("LocateClamped = %+v, want {7 0}", got)
	}

	center := grid.CellCenter(Cell{Col: 1, Row: 0})
	if center != (Vec2{X: 3, Y: 1}) {
		t.Fatalf("CellCenter = %+v, want {3 1}", center)
	}
}
