package nav

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crowdmarch/server/internal/telemetry"
	"crowdmarch/server/logging"
	navlog "crowdmarch/server/logging/navigation"
)

// AgentInput is one agent record supplied by the external world owner for
// a single tick. The pipeline never retains or mutates it.
type AgentInput struct {
	ID       string
	Pos      Vec2
	Vel      Vec2
	Radius   float64
	MaxSpeed float64
	HasGoal  bool
	Goal     Cell
	Group    uint32
	Priority uint32
}

// MapEdit is a walkability-change notification, applied before the tick's
// build stage runs.
type MapEdit struct {
	Cell        Cell
	Walkable    bool
	TerrainCost float64
}

// SteeringOutput is the velocity handed back to the external integrator
// for one agent.
type SteeringOutput struct {
	ID       string
	Velocity Vec2
}

// GoalStatus reports the build outcome for one goal requested this tick.
type GoalStatus struct {
	Goal   Cell
	Status BuildStatus
}

// FrameInput is everything the pipeline consumes for one tick.
type FrameInput struct {
	Tick   uint64
	Dt     float64
	Agents []AgentInput
	Edits  []MapEdit
}

// FrameOutput is everything the pipeline produces for one tick. Steering
// is ordered by agent ID and Goals by (row, col), so downstream encoding
// is byte-stable across runs.
type FrameOutput struct {
	Steering []SteeringOutput
	Goals    []GoalStatus
}

// Pipeline runs the fixed per-tick stage sequence: apply map edits,
// sanitize agent records, rebuild the spatial index, refresh density on
// its cadence, build (or fetch) flowfields, then solve local avoidance
// per agent. Each stage completes before the next starts; the parallel
// stages (builds across distinct goals, solves across agents) only read
// frozen state and write disjoint output slots, so goroutine scheduling
// cannot change the result.
type Pipeline struct {
	tuning  Tuning
	grid    *Grid
	spatial *SpatialIndex
	density *DensityField
	cache   *FlowFieldCache
	pub     logging.Publisher
	metrics telemetry.Metrics
	tick    atomic.Uint64
}

// NewPipeline assembles the navigation stack over a grid.
func NewPipeline(grid *Grid, tuning Tuning, pub logging.Publisher, metrics telemetry.Metrics) *Pipeline {
	tuning = tuning.Normalized()
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.WrapMetrics(nil)
	}
	density := NewDensityField(grid.Cols(), grid.Rows(), tuning.DensityRefreshTicks, tuning.DensityDecay)
	p := &Pipeline{
		tuning:  tuning,
		grid:    grid,
		spatial: NewSpatialIndex(tuning.SpatialCellSize),
		density: density,
		cache:   NewFlowFieldCache(grid, density, tuning.DensityWeight),
		pub:     pub,
		metrics: metrics,
	}
	p.cache.OnBuild(func(goal Cell, elapsed time.Duration, builds uint64) {
		navlog.FlowFieldBuilt(context.Background(), p.pub, p.tick.Load(), navlog.FlowFieldBuiltPayload{
			Col:            goal.Col,
			Row:            goal.Row,
			DurationMicros: elapsed.Microseconds(),
			CacheBuilds:    builds,
		})
	})
	return p
}

func (p *Pipeline) Grid() *Grid { return p.grid }

func (p *Pipeline) Cache() *FlowFieldCache { return p.cache }

func (p *Pipeline) Density() *DensityField { return p.density }

func (p *Pipeline) Tuning() Tuning { return p.tuning }

type sanitizedAgent struct {
	input    AgentInput
	excluded bool
}

// sanitize clamps or excludes pathological records so nothing non-finite
// reaches the optimization step, then orders agents by ID so every later
// stage iterates in a reproducible sequence. Excluded agents keep an
// output slot (zero steering) but take no part in neighbor queries.
func (p *Pipeline) sanitize(tick uint64, agents []AgentInput) []sanitizedAgent {
	out := make([]sanitizedAgent, 0, len(agents))
	for _, a := range agents {
		s := sanitizedAgent{input: a}
		switch {
		case !a.Pos.IsFinite() || !a.Vel.IsFinite():
			s.excluded = true
			navlog.AgentSanitized(context.Background(), p.pub, tick, a.ID, navlog.AgentSanitizedPayload{
				Reason:   "non-finite position or velocity",
				Excluded: true,
			})
			p.metrics.Add("nav.agents_excluded", 1)
		case math.IsNaN(a.Radius) || math.IsNaN(a.MaxSpeed) || math.IsInf(a.Radius, 0) || math.IsInf(a.MaxSpeed, 0):
			s.excluded = true
			navlog.AgentSanitized(context.Background(), p.pub, tick, a.ID, navlog.AgentSanitizedPayload{
				Reason:   "non-finite radius or max speed",
				Excluded: true,
			})
			p.metrics.Add("nav.agents_excluded", 1)
		default:
			if a.Radius < p.tuning.MinRadius {
				s.input.Radius = p.tuning.MinRadius
				navlog.AgentSanitized(context.Background(), p.pub, tick, a.ID, navlog.AgentSanitizedPayload{
					Reason: "radius clamped to minimum",
				})
				p.metrics.Add("nav.agents_clamped", 1)
			}
			if a.MaxSpeed < 0 {
				s.input.MaxSpeed = 0
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].input.ID < out[j].input.ID })
	return out
}

type buildResult struct {
	field *FlowField
	err   error
}

// Step runs one tick of the navigation pipeline.
func (p *Pipeline) Step(input FrameInput) FrameOutput {
	if p == nil {
		return FrameOutput{}
	}
	start := time.Now()
	p.tick.Store(input.Tick)

	for _, edit := range input.Edits {
		if edit.Walkable {
			p.grid.SetTerrainCost(edit.Cell, edit.TerrainCost)
		} else {
			p.grid.SetWalkable(edit.Cell, false)
		}
	}

	agents := p.sanitize(input.Tick, input.Agents)

	// Snapshot active agents; excluded ones stay out of every index.
	snapshots := make([]AgentSnapshot, 0, len(agents))
	agentSlot := make([]int, 0, len(agents)) // snapshot index -> agent slot
	slotFor := make([]int, len(agents))      // agent slot -> snapshot index, or -1
	positions := make([]Vec2, 0, len(agents))
	for i, a := range agents {
		if a.excluded {
			slotFor[i] = -1
			continue
		}
		slotFor[i] = len(snapshots)
		agentSlot = append(agentSlot, i)
		snapshots = append(snapshots, AgentSnapshot{
			ID:       a.input.ID,
			Pos:      a.input.Pos,
			Vel:      a.input.Vel,
			Radius:   a.input.Radius,
			MaxSpeed: a.input.MaxSpeed,
			Group:    a.input.Group,
			Priority: a.input.Priority,
		})
		positions = append(positions, a.input.Pos)
	}

	p.spatial.Rebuild(positions)
	p.density.MaybeRefresh(input.Tick, p.grid, positions)

	// Distinct goal cells, built concurrently; the cache deduplicates
	// same-goal requests into one build per stamp pair.
	goalSet := make(map[Cell]struct{})
	for _, a := range agents {
		if !a.excluded && a.input.HasGoal {
			goalSet[a.input.Goal] = struct{}{}
		}
	}
	goalList := make([]Cell, 0, len(goalSet))
	for goal := range goalSet {
		goalList = append(goalList, goal)
	}
	sort.Slice(goalList, func(i, j int) bool {
		if goalList[i].Row != goalList[j].Row {
			return goalList[i].Row < goalList[j].Row
		}
		return goalList[i].Col < goalList[j].Col
	})

	results := make([]buildResult, len(goalList))
	var buildWG sync.WaitGroup
	for i, goal := range goalList {
		buildWG.Add(1)
		go func(slot int, goal Cell) {
			defer buildWG.Done()
			field, err := p.cache.Get(goal)
			results[slot] = buildResult{field: field, err: err}
		}(i, goal)
	}
	buildWG.Wait()

	fields := make(map[Cell]buildResult, len(goalList))
	goals := make([]GoalStatus, 0, len(goalList))
	for i, goal := range goalList {
		fields[goal] = results[i]
		status := StatusReady
		if results[i].err != nil {
			status = StatusUnreachable
			navlog.GoalUnreachable(context.Background(), p.pub, input.Tick, navlog.GoalUnreachablePayload{
				Col: goal.Col,
				Row: goal.Row,
			})
			p.metrics.Add("nav.goals_unreachable", 1)
		}
		goals = append(goals, GoalStatus{Goal: goal, Status: status})
	}
	p.metrics.Store("nav.flowfield_builds", p.cache.Builds())

	// Desired velocity: flowfield direction at the agent's cell, braked
	// near the goal so arrivals settle instead of orbiting. Agents with a
	// failed or absent order hold position but still block neighbors.
	for i := range snapshots {
		s := &snapshots[i]
		agent := &agents[agentSlot[i]].input
		if !agent.HasGoal {
			continue
		}
		build := fields[agent.Goal]
		if build.err != nil || build.field == nil {
			continue
		}
		cell, ok := p.grid.Locate(s.Pos)
		if !ok || !build.field.Reachable(cell) {
			continue
		}
		desired := build.field.Sample(cell).Scale(s.MaxSpeed)
		if build.field.NearGoal(cell) {
			if cell == build.field.Goal() {
				desired = Vec2{}
			} else {
				desired = desired.Scale(p.tuning.ArriveScale)
			}
		}
		s.DesiredVel = desired
	}

	solved := p.solve(snapshots, input.Dt)

	steering := make([]SteeringOutput, len(agents))
	for i, a := range agents {
		steering[i] = SteeringOutput{ID: a.input.ID}
		if slot := slotFor[i]; slot >= 0 {
			steering[i].Velocity = solved[slot]
		}
	}

	elapsed := time.Since(start)
	p.metrics.Store("nav.tick_duration_micros", uint64(elapsed.Microseconds()))
	p.metrics.Add("nav.ticks", 1)
	budget := time.Duration(p.tuning.TickBudgetMillis) * time.Millisecond
	if elapsed > budget {
		navlog.TickBudgetOverrun(context.Background(), p.pub, input.Tick, navlog.TickBudgetOverrunPayload{
			DurationMillis: elapsed.Milliseconds(),
			BudgetMillis:   budget.Milliseconds(),
			Ratio:          float64(elapsed) / float64(budget),
		})
		p.metrics.Add("nav.tick_budget_overruns", 1)
	}

	return FrameOutput{Steering: steering, Goals: goals}
}

// solve runs the per-agent avoidance stage, scattered across workers.
// Every solve reads only the frozen spatial index and snapshot slice and
// writes its own result slot. Agents with zero desired velocity (arrived,
// idle, or holding after a failed order) skip their own optimization but
// still appear in neighbor constraint sets.
func (p *Pipeline) solve(snapshots []AgentSnapshot, dt float64) []Vec2 {
	solved := make([]Vec2, len(snapshots))
	if len(snapshots) == 0 {
		return solved
	}
	if dt <= 0 {
		dt = 1.0 / float64(p.tuning.TickRate)
	}
	invDt := 1.0 / dt

	maxRadius := 0.0
	for i := range snapshots {
		if snapshots[i].Radius > maxRadius {
			maxRadius = snapshots[i].Radius
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(snapshots) {
		workers = len(snapshots)
	}
	var wg sync.WaitGroup
	solves := make([]uint64, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			var neighbors []int
			for i := worker; i < len(snapshots); i += workers {
				s := &snapshots[i]
				if s.DesiredVel.LengthSq() <= orcaEpsilon*orcaEpsilon {
					continue
				}
				searchRadius := s.Radius + maxRadius + s.MaxSpeed*p.tuning.TimeHorizon
				neighbors = p.spatial.QueryRadius(s.Pos, searchRadius, neighbors[:0])
				solved[i] = SolveVelocity(snapshots, i, neighbors, p.tuning.TimeHorizon, invDt, p.tuning.MaxNeighbors)
				solves[worker]++
			}
		}(w)
	}
	wg.Wait()

	total := uint64(0)
	for _, n := range solves {
		total += n
	}
	p.metrics.Add("nav.solves", total)
	return solved
}
