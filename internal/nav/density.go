package nav

// DensityField tracks smoothed per-cell agent occupancy. It feeds the
// flowfield cost model, so it refreshes on a slower cadence than the
// per-tick spatial index; staleness of up to the refresh interval is an
// accepted trade-off against flowfield rebuild cost.
//
// Each refresh blends the previous value with the fresh occupancy count:
//
//	value = decay*old + (1-decay)*count
//
// so cells agents have left decay toward zero over subsequent refreshes
// instead of snapping there, which keeps the downstream flowfields from
// flickering as a column of agents streams through a cell.
type DensityField struct {
	cols, rows   int
	values       []float64
	counts       []int
	decay        float64
	refreshTicks int
	version      uint64
}

// NewDensityField creates a field matching the navigation grid's
// dimensions. refreshTicks is the cadence in ticks; decay in [0,1) is the
// weight kept from the previous refresh.
func NewDensityField(cols, rows, refreshTicks int, decay float64) *DensityField {
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	if refreshTicks <= 0 {
		refreshTicks = 1
	}
	if decay < 0 || decay >= 1 {
		decay = 0.5
	}
	return &DensityField{
		cols:         cols,
		rows:         rows,
		values:       make([]float64, cols*rows),
		counts:       make([]int, cols*rows),
		decay:        decay,
		refreshTicks: refreshTicks,
	}
}

// Version returns the refresh counter. Cached flowfields stamp this and
// rebuild when it advances.
func (d *DensityField) Version() uint64 {
	if d == nil {
		return 0
	}
	return d.version
}

// At returns the smoothed occupancy for a cell; out-of-bounds reads zero.
func (d *DensityField) At(c Cell) float64 {
	if d == nil || c.Col < 0 || c.Row < 0 || c.Col >= d.cols || c.Row >= d.rows {
		return 0
	}
	return d.values[c.Row*d.cols+c.Col]
}

// MaybeRefresh recomputes the field when the tick lands on the refresh
// cadence and reports whether a refresh happened. Positions outside the
// grid are ignored.
func (d *DensityField) MaybeRefresh(tick uint64, grid *Grid, positions []Vec2) bool {
	if d == nil || grid == nil {
		return false
	}
	if tick%uint64(d.refreshTicks) != 0 {
		return false
	}
	d.Refresh(grid, positions)
	return true
}

// Refresh unconditionally rescans positions into the field and advances
// the refresh version.
func (d *DensityField) Refresh(grid *Grid, positions []Vec2) {
	if d == nil || grid == nil {
		return
	}
	for i := range d.counts {
		d.counts[i] = 0
	}
	for _, pos := range positions {
		cell, ok := grid.Locate(pos)
		if !ok {
			continue
		}
		d.counts[cell.Row*d.cols+cell.Col]++
	}
	keep := d.decay
	blend := 1 - d.decay
	for i := range d.values {
		d.values[i] = keep*d.values[i] + blend*float64(d.counts[i])
	}
	d.version++
}

// Max returns the largest smoothed occupancy in the field.
func (d *DensityField) Max() float64 {
	if d == nil {
		return 0
	}
	max := 0.0
	for _, v := range d.values {
		if v > max {
			max = v
		}
	}
	return max
}
