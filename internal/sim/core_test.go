package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"testing"
	"time"

	"crowdmarch/server/internal/nav"
	"crowdmarch/server/internal/world"
)

const harnessSeed = "sim-harness"

func harnessTuning() nav.Tuning {
	t := nav.DefaultTuning()
	t.TickBudgetMillis = 10_000
	return t
}

func newCorridorCore(t *testing.T, agents int) *Core {
	t.Helper()
	w := world.NewWorld(world.Config{
		Seed:       harnessSeed,
		Cols:       24,
		Rows:       12,
		Scenario:   world.ScenarioCorridor,
		AgentCount: agents,
	})
	core, err := NewCore(w, harnessTuning(), Deps{})
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return core
}

func stepTicks(core *Core, ticks int, dt float64) {
	base := time.Unix(0, 0).UTC()
	for i := 0; i < ticks; i++ {
		core.Step(base.Add(time.Duration(i)*time.Second/15), dt)
	}
}

func TestApplyRoutesCommands(t *testing.T) {
	core := newCorridorCore(t, 4)
	w := core.World()

	err := core.Apply([]Command{
		{Type: CommandSetGroupGoal, Goal: &GoalCommand{Group: 0, Col: 22, Row: 6}},
		{Type: CommandEditCell, Edit: &EditCommand{Col: 3, Row: 3, Walkable: false}},
		{Type: CommandSpawnAgent, ActorID: "op", Spawn: &SpawnCommand{ID: "late", X: 2.5, Y: 9.5, Group: 1}},
		{Type: CommandRemoveAgent, ActorID: "agent-000001"},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := w.AgentByID("late"); !ok {
		t.Fatal("spawn command did not add the agent")
	}
	if _, ok := w.AgentByID("agent-000001"); ok {
		t.Fatal("remove command did not remove the agent")
	}

	// Edits stage until the next step; the grid is untouched mid-tick.
	if !w.Grid().Cell(nav.Cell{Col: 3, Row: 3}).Walkable {
		t.Fatal("cell edit applied before the tick boundary")
	}
	core.Step(time.Unix(0, 0), 1.0/15.0)
	if w.Grid().Cell(nav.Cell{Col: 3, Row: 3}).Walkable {
		t.Fatal("cell edit was not applied at the tick boundary")
	}
}

func TestSnapshotOrdersAgentsByID(t *testing.T) {
	core := newCorridorCore(t, 6)
	snap := core.Snapshot()
	if len(snap.Agents) != 6 {
		t.Fatalf("agents = %d, want 6", len(snap.Agents))
	}
	for i := 1; i < len(snap.Agents); i++ {
		if snap.Agents[i-1].ID >= snap.Agents[i].ID {
			t.Fatalf("agents out of order: %q before %q", snap.Agents[i-1].ID, snap.Agents[i].ID)
		}
	}
}

// Fifty agents funnel through a one-cell doorway and all settle within a
// cell of the goal, with no overlapping resting positions.
func TestCorridorMarchArrivesWithoutOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("long corridor march")
	}
	w := world.NewWorld(world.Config{
		Seed:        harnessSeed,
		Cols:        32,
		Rows:        16,
		Scenario:    world.ScenarioCorridor,
		AgentCount:  50,
		AgentRadius: 0.15,
	})
	core, err := NewCore(w, harnessTuning(), Deps{})
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}

	goal := nav.Cell{Col: 29, Row: 8}
	if n := w.SetGroupGoal(0, goal); n != 50 {
		t.Fatalf("goal order reached %d agents, want 50", n)
	}

	const (
		dt       = 1.0 / 15.0
		maxTicks = 4000
	)
	allArrived := func() bool {
		goalCenter := w.Grid().CellCenter(goal)
		for _, a := range w.Agents() {
			if math.Abs(a.Pos.X-goalCenter.X) > 1.5 || math.Abs(a.Pos.Y-goalCenter.Y) > 1.5 {
				return false
			}
		}
		return true
	}

	base := time.Unix(0, 0).UTC()
	arrived := false
	for tick := 0; tick < maxTicks; tick++ {
		core.Step(base, dt)
		if allArrived() {
			arrived = true
			break
		}
	}
	if !arrived {
		t.Fatalf("agents did not all arrive within %d ticks", maxTicks)
	}

	// Let the crowd settle before judging resting positions.
	for tick := 0; tick < 150; tick++ {
		core.Step(base, dt)
	}

	agents := w.Agents()
	for i := 0; i < len(agents); i++ {
		for j := i + 1; j < len(agents); j++ {
			dist := agents[i].Pos.Sub(agents[j].Pos).Length()
			if dist < agents[i].Radius+agents[j].Radius-0.02 {
				t.Fatalf("final positions overlap: %s and %s (dist %f)", agents[i].ID, agents[j].ID, dist)
			}
		}
	}
}

// With density feedback enabled the crowd spreads across parallel routes
// instead of stacking into one cell.
func TestDensityFeedbackReducesPeakOccupancy(t *testing.T) {
	if testing.Short() {
		t.Skip("long density comparison")
	}
	peak := func(densityWeight float64) float64 {
		tuning := harnessTuning()
		tuning.DensityWeight = densityWeight
		w := world.NewWorld(world.Config{
			Seed:       harnessSeed,
			Cols:       32,
			Rows:       24,
			Scenario:   world.ScenarioOpen,
			AgentCount: 40,
			GroupCount: 1,
		})
		core, err := NewCore(w, tuning, Deps{})
		if err != nil {
			t.Fatalf("NewCore: %v", err)
		}
		w.SetGroupGoal(0, nav.Cell{Col: 30, Row: 12})

		base := time.Unix(0, 0).UTC()
		maxPeak := 0.0
		counts := make(map[nav.Cell]int)
		for tick := 0; tick < 400; tick++ {
			core.Step(base, 1.0/15.0)
			for k := range counts {
				delete(counts, k)
			}
			for _, a := range w.Agents() {
				if cell, ok := w.Grid().Locate(a.Pos); ok {
					counts[cell]++
				}
			}
			for cell, n := range counts {
				if cell == (nav.Cell{Col: 30, Row: 12}) {
					continue // arrivals legitimately pool on the goal
				}
				if float64(n) > maxPeak {
					maxPeak = float64(n)
				}
			}
		}
		return maxPeak
	}

	with := peak(harnessTuning().DensityWeight)
	without := peak(0)
	if with > without {
		t.Fatalf("density feedback raised peak occupancy: with=%f without=%f", with, without)
	}
}

// snapshotChecksum folds a serialized snapshot into a running hash.
func snapshotChecksum(t *testing.T, snaps []Snapshot) string {
	t.Helper()
	hasher := sha256.New()
	enc := json.NewEncoder(hasher)
	for _, snap := range snaps {
		if err := enc.Encode(snap); err != nil {
			t.Fatalf("encode snapshot: %v", err)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Two full runs over the same seed and command script must serialize to
// byte-identical snapshot streams.
func TestDeterminismHarnessChecksumsMatch(t *testing.T) {
	run := func() string {
		w := world.NewWorld(world.Config{
			Seed:       harnessSeed,
			Cols:       24,
			Rows:       16,
			Scenario:   world.ScenarioCrossing,
			AgentCount: 16,
		})
		core, err := NewCore(w, harnessTuning(), Deps{})
		if err != nil {
			t.Fatalf("NewCore: %v", err)
		}

		base := time.Unix(0, 0).UTC()
		snaps := make([]Snapshot, 0, 60)
		for tick := 0; tick < 60; tick++ {
			switch tick {
			case 0:
				core.Apply([]Command{
					{Type: CommandSetGroupGoal, Goal: &GoalCommand{Group: 0, Col: 22, Row: 8}},
					{Type: CommandSetGroupGoal, Goal: &GoalCommand{Group: 1, Col: 1, Row: 8}},
				})
			case 20:
				core.Apply([]Command{
					{Type: CommandEditCell, Edit: &EditCommand{Col: 12, Row: 8, Walkable: false}},
				})
			case 35:
				core.Apply([]Command{
					{Type: CommandEditCell, Edit: &EditCommand{Col: 12, Row: 8, Walkable: true, TerrainCost: 3}},
				})
			}
			core.Step(base.Add(time.Duration(tick)*66*time.Millisecond), 1.0/15.0)
			snaps = append(snaps, core.Snapshot())
		}
		return snapshotChecksum(t, snaps)
	}

	first := run()
	second := run()
	if first != second {
		t.Fatalf("determinism drift: %s vs %s", first, second)
	}
}
