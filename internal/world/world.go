package world

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"crowdmarch/server/internal/nav"
)

var ErrDuplicateAgent = errors.New("world: duplicate agent id")

// Agent is the authoritative state for one mover. The world owns position
// and velocity; the navigation pipeline only ever sees copies and hands
// back steering.
type Agent struct {
	ID       string
	Pos      nav.Vec2
	Vel      nav.Vec2
	Radius   float64
	MaxSpeed float64
	Group    uint32
	Priority uint32
	HasGoal  bool
	Goal     nav.Cell
}

// World holds the navigation grid plus every agent. It is not
// goroutine-safe; the simulation engine serializes all access on the tick
// goroutine.
type World struct {
	cfg    Config
	grid   *nav.Grid
	agents map[string]*Agent
	nextID uint64
}

// NewWorld builds a grid from the config and seeds the configured
// scenario. The same config always produces the same world.
func NewWorld(cfg Config) *World {
	cfg = cfg.Normalized()
	w := &World{
		cfg:    cfg,
		grid:   nav.NewGrid(cfg.Cols, cfg.Rows, cfg.CellSize),
		agents: make(map[string]*Agent),
	}
	seedScenario(w)
	return w
}

func (w *World) Config() Config {
	if w == nil {
		return Config{}
	}
	return w.cfg
}

func (w *World) Grid() *nav.Grid {
	if w == nil {
		return nil
	}
	return w.grid
}

// SubsystemRNG derives an independent random stream for a named
// subsystem from the world seed.
func (w *World) SubsystemRNG(label string) *rand.Rand {
	seed := DefaultSeed
	if w != nil {
		seed = w.cfg.Seed
	}
	return NewDeterministicRNG(seed, label)
}

// SpawnAgent adds an agent at pos. An empty id is assigned from a
// monotonic counter; an explicit duplicate id is rejected.
func (w *World) SpawnAgent(id string, pos nav.Vec2, group, priority uint32) (*Agent, error) {
	if w == nil {
		return nil, errors.New("world: nil world")
	}
	if id == "" {
		w.nextID++
		id = fmt.Sprintf("agent-%06d", w.nextID)
	}
	if _, exists := w.agents[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}
	a := &Agent{
		ID:       id,
		Pos:      w.clampToBounds(pos, w.cfg.AgentRadius),
		Radius:   w.cfg.AgentRadius,
		MaxSpeed: w.cfg.AgentMaxSpeed,
		Group:    group,
		Priority: priority,
	}
	w.agents[id] = a
	return a, nil
}

func (w *World) RemoveAgent(id string) bool {
	if w == nil {
		return false
	}
	if _, ok := w.agents[id]; !ok {
		return false
	}
	delete(w.agents, id)
	return true
}

func (w *World) AgentByID(id string) (*Agent, bool) {
	if w == nil {
		return nil, false
	}
	a, ok := w.agents[id]
	return a, ok
}

func (w *World) AgentCount() int {
	if w == nil {
		return 0
	}
	return len(w.agents)
}

// SetGroupGoal points every member of group at goal and reports how many
// agents were retargeted.
func (w *World) SetGroupGoal(group uint32, goal nav.Cell) int {
	if w == nil {
		return 0
	}
	count := 0
	for _, a := range w.agents {
		if a.Group != group {
			continue
		}
		a.HasGoal = true
		a.Goal = goal
		count++
	}
	return count
}

func (w *World) SetAgentGoal(id string, goal nav.Cell) bool {
	a, ok := w.AgentByID(id)
	if !ok {
		return false
	}
	a.HasGoal = true
	a.Goal = goal
	return true
}

func (w *World) ClearAgentGoal(id string) bool {
	a, ok := w.AgentByID(id)
	if !ok {
		return false
	}
	a.HasGoal = false
	a.Goal = nav.Cell{}
	return true
}

// Agents returns a value-copy of every agent, sorted by ID.
func (w *World) Agents() []Agent {
	if w == nil {
		return nil
	}
	out := make([]Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FrameAgents assembles the per-tick navigation input, sorted by ID.
func (w *World) FrameAgents() []nav.AgentInput {
	if w == nil {
		return nil
	}
	out := make([]nav.AgentInput, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, nav.AgentInput{
			ID:       a.ID,
			Pos:      a.Pos,
			Vel:      a.Vel,
			Radius:   a.Radius,
			MaxSpeed: a.MaxSpeed,
			HasGoal:  a.HasGoal,
			Goal:     a.Goal,
			Group:    a.Group,
			Priority: a.Priority,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplySteering integrates solved velocities into positions. Unknown IDs
// are ignored so a steering frame computed just before a removal cannot
// resurrect an agent.
func (w *World) ApplySteering(steering []nav.SteeringOutput, dt float64) {
	if w == nil || dt <= 0 {
		return
	}
	for _, s := range steering {
		a, ok := w.agents[s.ID]
		if !ok {
			continue
		}
		a.Vel = s.Velocity
		a.Pos = w.clampToBounds(a.Pos.Add(s.Velocity.Scale(dt)), a.Radius)
		if a.HasGoal && a.Vel == (nav.Vec2{}) && w.AtGoal(a) {
			a.HasGoal = false
		}
	}
}

// AtGoal reports whether the agent stands in its goal cell.
func (w *World) AtGoal(a *Agent) bool {
	if w == nil || a == nil || !a.HasGoal {
		return false
	}
	cell, ok := w.grid.Locate(a.Pos)
	return ok && cell == a.Goal
}

func (w *World) clampToBounds(p nav.Vec2, margin float64) nav.Vec2 {
	maxX := w.grid.Width() - margin
	maxY := w.grid.Height() - margin
	if p.X < margin {
		p.X = margin
	} else if p.X > maxX {
		p.X = maxX
	}
	if p.Y < margin {
		p.Y = margin
	} else if p.Y > maxY {
		p.Y = maxY
	}
	return p
}
