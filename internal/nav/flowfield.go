package nav

import (
	"container/heap"
	"errors"
	"math"
)

// ErrUnreachableGoal reports a flowfield request whose goal cell is
// blocked or out of bounds. Callers treat the requesting order as failed
// and have agents hold position rather than follow a degenerate field.
var ErrUnreachableGoal = errors.New("nav: goal cell unreachable")

type navNeighbor struct {
	col      int
	row      int
	step     float64
	diagonal bool
}

// Fixed neighbor enumeration order. Direction ties and relaxation order
// both follow this table, never map iteration, so repeated builds produce
// bit-identical fields.
var navNeighborOffsets = [...]navNeighbor{
	{col: 0, row: -1, step: 1, diagonal: false},
	{col: 1, row: 0, step: 1, diagonal: false},
	{col: 0, row: 1, step: 1, diagonal: false},
	{col: -1, row: 0, step: 1, diagonal: false},
	{col: 1, row: -1, step: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, step: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, step: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, step: math.Sqrt2, diagonal: true},
}

// FlowField is a per-goal direction field shared read-only by every agent
// whose current order targets the goal cell. Direction vectors are unit
// length except at the goal itself and in unreachable cells, where they
// are zero.
type FlowField struct {
	cols, rows  int
	goal        Cell
	integration []float64
	direction   []Vec2
}

func (f *FlowField) Goal() Cell { return f.goal }

// Integration returns the accumulated cost from c to the goal, or +Inf
// when c cannot reach it.
func (f *FlowField) Integration(c Cell) float64 {
	if f == nil || c.Col < 0 || c.Row < 0 || c.Col >= f.cols || c.Row >= f.rows {
		return math.Inf(1)
	}
	return f.integration[c.Row*f.cols+c.Col]
}

// Sample returns the movement direction for c: a unit vector, or zero at
// the goal and in unreachable cells.
func (f *FlowField) Sample(c Cell) Vec2 {
	if f == nil || c.Col < 0 || c.Row < 0 || c.Col >= f.cols || c.Row >= f.rows {
		return Vec2{}
	}
	return f.direction[c.Row*f.cols+c.Col]
}

// Reachable reports whether c has a finite path to the goal.
func (f *FlowField) Reachable(c Cell) bool {
	return !math.IsInf(f.Integration(c), 1)
}

// NearGoal reports whether c is the goal or an adjacent reachable cell,
// used by callers to start braking before overshooting the goal.
func (f *FlowField) NearGoal(c Cell) bool {
	if f == nil || !f.Reachable(c) {
		return false
	}
	dc := c.Col - f.goal.Col
	dr := c.Row - f.goal.Row
	return dc >= -1 && dc <= 1 && dr >= -1 && dr <= 1
}

type fieldNode struct {
	idx  int
	cost float64
}

type fieldQueue []fieldNode

func (q fieldQueue) Len() int { return len(q) }

func (q fieldQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].idx < q[j].idx
}

func (q fieldQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *fieldQueue) Push(x any) { *q = append(*q, x.(fieldNode)) }

func (q *fieldQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// cornerOpen reports whether a diagonal move from c by delta keeps both
// orthogonally adjacent cells walkable, forbidding cuts through blocked
// corners.
func cornerOpen(grid *Grid, c Cell, delta navNeighbor) bool {
	if !delta.diagonal {
		return true
	}
	horiz := Cell{Col: c.Col + delta.col, Row: c.Row}
	vert := Cell{Col: c.Col, Row: c.Row + delta.row}
	return grid.Cell(horiz).Walkable && grid.Cell(vert).Walkable
}

// BuildFlowField computes a direction field toward goal. The traversal
// cost of stepping into a cell blends its static terrain cost with the
// live density sample:
//
//	cost(B) = step * (terrainCost(B) + densityWeight*density(B))
//
// Integration is a Dijkstra relaxation outward from the goal over the
// 8-connected neighborhood; blocked cells are never relaxed into. The
// direction pass then points every reachable cell at its lowest-cost
// neighbor. A nil density field builds a pure terrain-cost field.
func BuildFlowField(grid *Grid, density *DensityField, densityWeight float64, goal Cell) (*FlowField, error) {
	if grid == nil {
		return nil, ErrUnreachableGoal
	}
	if !grid.InBounds(goal) || !grid.Cell(goal).Walkable {
		return nil, ErrUnreachableGoal
	}

	cols, rows := grid.Cols(), grid.Rows()
	size := cols * rows
	field := &FlowField{
		cols:        cols,
		rows:        rows,
		goal:        goal,
		integration: make([]float64, size),
		direction:   make([]Vec2, size),
	}
	for i := range field.integration {
		field.integration[i] = math.Inf(1)
	}

	goalIdx := goal.Row*cols + goal.Col
	field.integration[goalIdx] = 0

	queue := &fieldQueue{{idx: goalIdx, cost: 0}}
	heap.Init(queue)
	for queue.Len() > 0 {
		current := heap.Pop(queue).(fieldNode)
		if current.cost > field.integration[current.idx] {
			continue
		}
		cell := Cell{Col: current.idx % cols, Row: current.idx / cols}
		for _, delta := range navNeighborOffsets {
			next := Cell{Col: cell.Col + delta.col, Row: cell.Row + delta.row}
			nc := grid.Cell(next)
			if !nc.Walkable {
				continue
			}
			if !cornerOpen(grid, cell, delta) {
				continue
			}
			edge := nc.TerrainCost
			if density != nil {
				edge += densityWeight * density.At(next)
			}
			tentative := current.cost + delta.step*edge
			idx := next.Row*cols + next.Col
			if tentative < field.integration[idx] {
				field.integration[idx] = tentative
				heap.Push(queue, fieldNode{idx: idx, cost: tentative})
			}
		}
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			idx := row*cols + col
			here := field.integration[idx]
			if math.IsInf(here, 1) || here == 0 {
				// Unreachable cells and the goal keep the zero vector.
				continue
			}
			cell := Cell{Col: col, Row: row}
			best := here
			var bestDir Vec2
			for _, delta := range navNeighborOffsets {
				next := Cell{Col: col + delta.col, Row: row + delta.row}
				if !grid.InBounds(next) || !cornerOpen(grid, cell, delta) {
					continue
				}
				nIdx := next.Row*cols + next.Col
				if field.integration[nIdx] < best {
					best = field.integration[nIdx]
					bestDir = Vec2{X: float64(delta.col), Y: float64(delta.row)}.Normalized()
				}
			}
			field.direction[idx] = bestDir
		}
	}

	return field, nil
}
