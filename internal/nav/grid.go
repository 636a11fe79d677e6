package nav

import "math"

// Cell addresses one tile of the navigation grid.
type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// NavCell is the static walkability record for one tile. TerrainCost is
// at least 1 for walkable tiles and +Inf for blocked ones.
type NavCell struct {
	Walkable    bool
	TerrainCost float64
}

var blockedCell = NavCell{Walkable: false, TerrainCost: math.Inf(1)}

// Grid holds per-tile walkability and terrain cost in flat arrays indexed
// by row-major cell coordinates. It is single-writer (map edits applied
// between pipeline stages) and multi-reader during flowfield builds.
// Every mutation bumps a monotonic version so cached flowfields can be
// invalidated with a cheap stamp compare instead of an eager rebuild.
type Grid struct {
	cols, rows int
	cellSize   float64
	cells      []NavCell
	version    uint64
}

// NewGrid creates a fully open grid with unit terrain cost everywhere.
func NewGrid(cols, rows int, cellSize float64) *Grid {
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	if cellSize <= 0 {
		cellSize = 1
	}
	g := &Grid{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		cells:    make([]NavCell, cols*rows),
	}
	for i := range g.cells {
		g.cells[i] = NavCell{Walkable: true, TerrainCost: 1}
	}
	return g
}

func (g *Grid) Cols() int { return g.cols }

func (g *Grid) Rows() int { return g.rows }

func (g *Grid) CellSize() float64 { return g.cellSize }

// Version returns the monotonic mutation counter.
func (g *Grid) Version() uint64 {
	if g == nil {
		return 0
	}
	return g.version
}

func (g *Grid) InBounds(c Cell) bool {
	return g != nil && c.Col >= 0 && c.Row >= 0 && c.Col < g.cols && c.Row < g.rows
}

func (g *Grid) index(c Cell) int {
	return c.Row*g.cols + c.Col
}

// Cell returns the walkability record for c. Out-of-bounds cells read as
// blocked; there is no error condition.
func (g *Grid) Cell(c Cell) NavCell {
	if !g.InBounds(c) {
		return blockedCell
	}
	return g.cells[g.index(c)]
}

// SetWalkable marks a tile walkable or blocked. Blocking forces the
// terrain cost to +Inf; unblocking a tile with no finite cost resets it
// to the unit cost.
func (g *Grid) SetWalkable(c Cell, walkable bool) {
	if !g.InBounds(c) {
		return
	}
	idx := g.index(c)
	if walkable {
		cost := g.cells[idx].TerrainCost
		if math.IsInf(cost, 1) || cost < 1 {
			cost = 1
		}
		g.cells[idx] = NavCell{Walkable: true, TerrainCost: cost}
	} else {
		g.cells[idx] = blockedCell
	}
	g.version++
}

// SetTerrainCost assigns the traversal cost of a tile. Costs below 1 are
// clamped to 1; +Inf (or NaN) blocks the tile outright.
func (g *Grid) SetTerrainCost(c Cell, cost float64) {
	if !g.InBounds(c) {
		return
	}
	idx := g.index(c)
	if math.IsInf(cost, 1) || math.IsNaN(cost) {
		g.cells[idx] = blockedCell
	} else {
		if cost < 1 {
			cost = 1
		}
		g.cells[idx] = NavCell{Walkable: true, TerrainCost: cost}
	}
	g.version++
}

// Locate converts a world position to the containing cell. The second
// return is false when the position falls outside the grid.
func (g *Grid) Locate(p Vec2) (Cell, bool) {
	if g == nil || !p.IsFinite() || p.X < 0 || p.Y < 0 {
		return Cell{}, false
	}
	c := Cell{Col: int(p.X / g.cellSize), Row: int(p.Y / g.cellSize)}
	if !g.InBounds(c) {
		return Cell{}, false
	}
	return c, true
}

// LocateClamped converts a world position to the nearest in-bounds cell.
func (g *Grid) LocateClamped(p Vec2) Cell {
	if g == nil || !p.IsFinite() {
		return Cell{}
	}
	col := int(math.Max(p.X, 0) / g.cellSize)
	row := int(math.Max(p.Y, 0) / g.cellSize)
	if col >= g.cols {
		col = g.cols - 1
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return Cell{Col: col, Row: row}
}

// CellCenter returns the world-space center of a cell.
func (g *Grid) CellCenter(c Cell) Vec2 {
	return Vec2{
		X: (float64(c.Col) + 0.5) * g.cellSize,
		Y: (float64(c.Row) + 0.5) * g.cellSize,
	}
}

// Width and Height report world-space grid extents.
func (g *Grid) Width() float64  { return float64(g.cols) * g.cellSize }
func (g *Grid) Height() float64 { return float64(g.rows) * g.cellSize }
