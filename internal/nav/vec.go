package nav

import "math"

// Vec2 is a ground-plane vector. All navigation math is 2D; the vertical
// axis is owned by whatever renders the world.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Det is the 2D cross product det(v, o) = v.X*o.Y - v.Y*o.X.
func (v Vec2) Det(o Vec2) float64 {
	return v.X*o.Y - v.Y*o.X
}

func (v Vec2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vec2) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalized returns the unit vector, or the zero vector when v is too
// short to normalize safely.
func (v Vec2) Normalized() Vec2 {
	length := v.Length()
	if length <= orcaEpsilon {
		return Vec2{}
	}
	return Vec2{X: v.X / length, Y: v.Y / length}
}

// ClampLength limits v to the given magnitude without changing direction.
func (v Vec2) ClampLength(max float64) Vec2 {
	if max <= 0 {
		return Vec2{}
	}
	lenSq := v.LengthSq()
	if lenSq <= max*max {
		return v
	}
	return v.Scale(max / math.Sqrt(lenSq))
}

// IsFinite reports whether both components are real numbers.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
