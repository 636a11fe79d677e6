package nav

import (
	"math"
	"sort"
)

type bucketKey struct {
	X int
	Y int
}

// SpatialIndex is a uniform bucket grid over agent positions. It is
// rebuilt from scratch every tick (no incremental update, so buckets can
// never go stale) and is read-only for the rest of the tick.
//
// Stored values are indices into the snapshot slice the index was rebuilt
// from. Callers pass agents sorted by ID, so per-bucket insertion order
// is already the stable ID order the solver tie-breaks rely on.
type SpatialIndex struct {
	cellSize    float64
	invCellSize float64
	buckets     map[bucketKey][]int
	positions   []Vec2
}

// NewSpatialIndex creates an index with the given bucket side length.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &SpatialIndex{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		buckets:     make(map[bucketKey][]int),
	}
}

func (idx *SpatialIndex) keyFor(p Vec2) bucketKey {
	return bucketKey{
		X: int(math.Floor(p.X * idx.invCellSize)),
		Y: int(math.Floor(p.Y * idx.invCellSize)),
	}
}

// Rebuild clears the index and reinserts every position. O(len(positions)).
func (idx *SpatialIndex) Rebuild(positions []Vec2) {
	if idx == nil {
		return
	}
	for key := range idx.buckets {
		delete(idx.buckets, key)
	}
	idx.positions = positions
	for i, pos := range positions {
		key := idx.keyFor(pos)
		idx.buckets[key] = append(idx.buckets[key], i)
	}
}

// QueryRadius appends to out the indices of all positions within radius
// of p, in ascending index order, and returns the extended slice. The
// ring of buckets covering the radius is scanned and candidates are
// post-filtered by true Euclidean distance.
func (idx *SpatialIndex) QueryRadius(p Vec2, radius float64, out []int) []int {
	if idx == nil || radius < 0 {
		return out
	}
	ring := int(math.Ceil(radius * idx.invCellSize))
	center := idx.keyFor(p)
	radiusSq := radius * radius
	start := len(out)
	for dy := -ring; dy <= ring; dy++ {
		for dx := -ring; dx <= ring; dx++ {
			bucket := idx.buckets[bucketKey{X: center.X + dx, Y: center.Y + dy}]
			for _, i := range bucket {
				if idx.positions[i].Sub(p).LengthSq() <= radiusSq {
					out = append(out, i)
				}
			}
		}
	}
	// Bucket scan order is spatial, not index order; restore the stable
	// ascending order the solver expects.
	sort.Ints(out[start:])
	return out
}
