package nav

import (
	"math"
	"sort"
)

const orcaEpsilon = 1e-5

// AgentSnapshot is the read-only per-agent state the avoidance solver
// consumes. Snapshots are collected once per tick, before the solve
// stage, and never mutated by it.
type AgentSnapshot struct {
	ID string
	// Pos and Vel are the authoritative position and previous-tick
	// velocity supplied by the external movement owner.
	Pos Vec2
	Vel Vec2
	// DesiredVel is the flowfield direction scaled to max speed. It is
	// the solve target for the agent itself and, for its neighbors, the
	// expected velocity used when building their half-planes.
	DesiredVel Vec2
	Radius   float64
	MaxSpeed float64
	// Group identifies the shared movement order the agent belongs to.
	// It routes goal assignment; it has no effect on avoidance.
	Group uint32
	// Priority rank; lower value outranks. The outranked agent of a pair
	// takes the larger share of the velocity adjustment.
	Priority uint32
}

// orcaLine is a directed half-plane constraint in velocity space.
// Feasible velocities v satisfy det(dir, point-v) <= 0, i.e. v lies on
// the left of the ray from point along dir (RVO2 convention).
type orcaLine struct {
	point Vec2
	dir   Vec2
}

// orcaHalfplane builds the constraint agent A must respect to avoid
// agent B within timeHorizon, with A taking responsibility fraction
// respons of the required velocity change. invDt shortens the horizon to
// a single tick when the disks already overlap.
func orcaHalfplane(posA, velA Vec2, rA float64, posB, velB Vec2, rB float64, timeHorizon, invDt, respons float64) orcaLine {
	relPos := posB.Sub(posA)
	relVel := velA.Sub(velB)
	distSq := relPos.LengthSq()
	combinedR := rA + rB
	combinedRSq := combinedR * combinedR

	var u Vec2
	var lineDir Vec2

	if distSq > combinedRSq {
		// Not yet overlapping: constrain against the truncated velocity
		// obstacle cone.
		w := relVel.Sub(relPos.Scale(1 / timeHorizon))
		wSq := w.LengthSq()
		dot := w.Dot(relPos)

		if dot < 0 && dot*dot > combinedRSq*wSq {
			// Closest point lies on the cone's circular cap.
			wLen := math.Sqrt(wSq)
			unitW := Vec2{X: 1}
			if wLen > orcaEpsilon {
				unitW = w.Scale(1 / wLen)
			}
			lineDir = Vec2{X: unitW.Y, Y: -unitW.X}
			u = unitW.Scale(combinedR/timeHorizon - wLen)
		} else {
			// Closest point lies on one of the cone legs.
			leg := math.Sqrt(math.Max(distSq-combinedRSq, 0))
			if relPos.Det(w) > 0 {
				lineDir = Vec2{
					X: relPos.X*leg - relPos.Y*combinedR,
					Y: relPos.X*combinedR + relPos.Y*leg,
				}.Scale(1 / distSq)
			} else {
				lineDir = Vec2{
					X: relPos.X*leg + relPos.Y*combinedR,
					Y: -relPos.X*combinedR + relPos.Y*leg,
				}.Scale(-1 / distSq)
			}
			u = lineDir.Scale(relVel.Dot(lineDir)).Sub(relVel)
		}
	} else {
		// Already overlapping: resolve within one tick.
		w := relVel.Sub(relPos.Scale(invDt))
		wLen := w.Length()
		var unitW Vec2
		switch {
		case wLen > orcaEpsilon:
			unitW = w.Scale(1 / wLen)
		case relPos.LengthSq() > orcaEpsilon*orcaEpsilon:
			// Push straight away from the neighbor's center.
			unitW = relPos.Normalized().Scale(-1)
		default:
			unitW = Vec2{X: 1}
		}
		lineDir = Vec2{X: unitW.Y, Y: -unitW.X}
		u = unitW.Scale(combinedR*invDt - wLen)
	}

	return orcaLine{point: velA.Add(u.Scale(respons)), dir: lineDir}
}

// linearProgram1 solves the one-dimensional subproblem along constraint
// lineNo, given constraints 0..lineNo-1 already hold. Reports false when
// the subproblem is infeasible.
func linearProgram1(lines []orcaLine, lineNo int, maxSpeed float64, pref Vec2, dirOpt bool, result *Vec2) bool {
	line := lines[lineNo]
	dot := line.point.Dot(line.dir)
	disc := dot*dot + maxSpeed*maxSpeed - line.point.LengthSq()
	if disc < 0 {
		// Speed circle misses this constraint line entirely.
		return false
	}
	sq := math.Sqrt(disc)
	tLeft := -dot - sq
	tRight := -dot + sq

	for i := 0; i < lineNo; i++ {
		denom := line.dir.Det(lines[i].dir)
		numer := lines[i].dir.Det(line.point.Sub(lines[i].point))
		if math.Abs(denom) <= orcaEpsilon {
			if numer < 0 {
				return false
			}
			continue
		}
		t := numer / denom
		if denom < 0 {
			if t < tRight {
				tRight = t
			}
		} else {
			if t > tLeft {
				tLeft = t
			}
		}
		if tLeft > tRight {
			return false
		}
	}

	if dirOpt {
		if line.dir.Dot(pref) > 0 {
			*result = line.point.Add(line.dir.Scale(tRight))
		} else {
			*result = line.point.Add(line.dir.Scale(tLeft))
		}
	} else {
		t := line.dir.Dot(pref.Sub(line.point))
		if t < tLeft {
			t = tLeft
		} else if t > tRight {
			t = tRight
		}
		*result = line.point.Add(line.dir.Scale(t))
	}
	return true
}

// linearProgram2 finds the feasible velocity closest to pref (or, with
// dirOpt, the extreme velocity in pref's direction). Returns the index of
// the first unsatisfiable constraint, or len(lines) when all hold.
func linearProgram2(lines []orcaLine, maxSpeed float64, pref Vec2, dirOpt bool, result *Vec2) int {
	if dirOpt {
		*result = pref.Normalized().Scale(maxSpeed)
	} else if result.LengthSq() > maxSpeed*maxSpeed {
		*result = result.Normalized().Scale(maxSpeed)
	}

	for i := range lines {
		if lines[i].dir.Det(lines[i].point.Sub(*result)) > 0 {
			prev := *result
			if !linearProgram1(lines, i, maxSpeed, pref, dirOpt, result) {
				*result = prev
				return i
			}
		}
	}
	return len(lines)
}

// linearProgram3 handles the overconstrained case: starting from the
// first failed constraint it minimizes the maximum violation depth by
// projecting earlier constraints onto each violated one. Constraints are
// ordered nearest-neighbor first, so the relaxation effectively yields on
// the farthest neighbors while always honoring the nearest.
func linearProgram3(lines []orcaLine, begin int, maxSpeed float64, result *Vec2) {
	distance := 0.0
	for i := begin; i < len(lines); i++ {
		if lines[i].dir.Det(lines[i].point.Sub(*result)) <= distance {
			continue
		}
		proj := make([]orcaLine, 0, i)
		for j := 0; j < i; j++ {
			d := lines[i].dir.Det(lines[j].dir)
			if math.Abs(d) <= orcaEpsilon {
				if lines[i].dir.Dot(lines[j].dir) > 0 {
					// Parallel same direction: subsumed.
					continue
				}
				proj = append(proj, orcaLine{
					point: lines[i].point.Add(lines[j].point).Scale(0.5),
					dir:   lines[j].dir.Sub(lines[i].dir).Normalized(),
				})
				continue
			}
			t := lines[j].dir.Det(lines[i].point.Sub(lines[j].point)) / d
			proj = append(proj, orcaLine{
				point: lines[i].point.Add(lines[i].dir.Scale(t)),
				dir:   lines[j].dir.Sub(lines[i].dir).Normalized(),
			})
		}
		optDir := Vec2{X: -lines[i].dir.Y, Y: lines[i].dir.X}
		prev := *result
		if linearProgram2(proj, maxSpeed, optDir, true, result) < len(proj) {
			// Numerical edge case; keep the previous best answer.
			*result = prev
		}
		distance = lines[i].dir.Det(lines[i].point.Sub(*result))
	}
}

// responsibilityShare returns the fraction of the avoidance adjustment
// agent a must take against b. Equal ranks split symmetrically, which is
// what prevents the oscillation of naive mutual repulsion; an outranked
// agent steps further aside so higher-priority traffic holds course.
func responsibilityShare(a, b *AgentSnapshot) float64 {
	switch {
	case a.Priority == b.Priority:
		return 0.5
	case a.Priority < b.Priority:
		return 0.2
	default:
		return 0.8
	}
}

type neighborRef struct {
	distSq float64
	index  int
}

// SolveVelocity computes the avoidance velocity for agents[index].
//
// neighbors are snapshot indices from the spatial index (ascending, which
// keeps tie-breaks reproducible). Each neighbor within reach contributes
// one half-plane built against the neighbor's *desired*
// velocity: assuming neighbors follow their flowfield rather than their
// literal current velocity lets agents drift into lanes well before a
// closing encounter turns imminent. maxNeighbors caps the constraint
// count, keeping only the nearest; this both bounds the solve and drops
// the least pressing constraints first when crowds overconstrain it.
//
// The result is always within the agent's max speed and defined for any
// input: infeasible constraint sets degrade through linearProgram3, never
// an error.
func SolveVelocity(agents []AgentSnapshot, index int, neighbors []int, timeHorizon, invDt float64, maxNeighbors int) Vec2 {
	a := &agents[index]
	if timeHorizon <= 0 {
		timeHorizon = 1
	}

	refs := make([]neighborRef, 0, len(neighbors))
	for _, n := range neighbors {
		if n == index {
			continue
		}
		b := &agents[n]
		reach := a.Radius + b.Radius + a.MaxSpeed*timeHorizon
		distSq := b.Pos.Sub(a.Pos).LengthSq()
		if distSq > reach*reach {
			continue
		}
		refs = append(refs, neighborRef{distSq: distSq, index: n})
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].distSq != refs[j].distSq {
			return refs[i].distSq < refs[j].distSq
		}
		return refs[i].index < refs[j].index
	})
	if maxNeighbors > 0 && len(refs) > maxNeighbors {
		refs = refs[:maxNeighbors]
	}

	lines := make([]orcaLine, 0, len(refs))
	for _, ref := range refs {
		b := &agents[ref.index]
		lines = append(lines, orcaHalfplane(
			a.Pos, a.Vel, a.Radius,
			b.Pos, b.DesiredVel, b.Radius,
			timeHorizon, invDt,
			responsibilityShare(a, b),
		))
	}

	result := a.DesiredVel
	if fail := linearProgram2(lines, a.MaxSpeed, a.DesiredVel, false, &result); fail < len(lines) {
		linearProgram3(lines, fail, a.MaxSpeed, &result)
	}
	return result
}
