package sim

import (
	"errors"
	"time"

	"crowdmarch/server/internal/nav"
	"crowdmarch/server/internal/world"
)

var ErrMissingWorld = errors.New("sim: world is nil")

// Core advances the world one navigation tick at a time. It owns the
// tick counter and the pending-edit queue; the navigation pipeline owns
// everything derived (spatial index, density, flowfields).
type Core struct {
	deps     Deps
	world    *world.World
	pipeline *nav.Pipeline

	tick         uint64
	pendingEdits []nav.MapEdit
	lastGoals    []nav.GoalStatus
}

// NewCore wires a world to a navigation pipeline.
func NewCore(w *world.World, tuning nav.Tuning, deps Deps) (*Core, error) {
	if w == nil {
		return nil, ErrMissingWorld
	}
	deps = deps.normalized()
	return &Core{
		deps:     deps,
		world:    w,
		pipeline: nav.NewPipeline(w.Grid(), tuning, deps.Publisher, deps.Metrics),
	}, nil
}

func (c *Core) Deps() Deps {
	if c == nil {
		return Deps{}
	}
	return c.deps
}

func (c *Core) Tick() uint64 {
	if c == nil {
		return 0
	}
	return c.tick
}

func (c *Core) World() *world.World {
	if c == nil {
		return nil
	}
	return c.world
}

func (c *Core) Pipeline() *nav.Pipeline {
	if c == nil {
		return nil
	}
	return c.pipeline
}

// Apply stages the effects of drained commands onto the world. Terrain
// edits are deferred to the next Step so the grid never changes mid-tick.
func (c *Core) Apply(cmds []Command) error {
	if c == nil {
		return nil
	}
	for _, cmd := range cmds {
		switch cmd.Type {
		case CommandSetGroupGoal:
			if cmd.Goal == nil {
				continue
			}
			n := c.world.SetGroupGoal(cmd.Goal.Group, nav.Cell{Col: cmd.Goal.Col, Row: cmd.Goal.Row})
			c.deps.Metrics.Add("sim.goal_orders", 1)
			if n == 0 {
				c.deps.Logger.Printf("goal order for empty group %d", cmd.Goal.Group)
			}
		case CommandSetAgentGoal:
			if cmd.Goal == nil {
				continue
			}
			if c.world.SetAgentGoal(cmd.ActorID, nav.Cell{Col: cmd.Goal.Col, Row: cmd.Goal.Row}) {
				c.deps.Metrics.Add("sim.goal_orders", 1)
			}
		case CommandClearGoal:
			c.world.ClearAgentGoal(cmd.ActorID)
		case CommandEditCell:
			if cmd.Edit == nil {
				continue
			}
			c.pendingEdits = append(c.pendingEdits, nav.MapEdit{
				Cell:        nav.Cell{Col: cmd.Edit.Col, Row: cmd.Edit.Row},
				Walkable:    cmd.Edit.Walkable,
				TerrainCost: cmd.Edit.TerrainCost,
			})
			c.deps.Metrics.Add("sim.cell_edits", 1)
		case CommandSpawnAgent:
			if cmd.Spawn == nil {
				continue
			}
			if _, err := c.world.SpawnAgent(cmd.Spawn.ID, nav.Vec2{X: cmd.Spawn.X, Y: cmd.Spawn.Y}, cmd.Spawn.Group, cmd.Spawn.Priority); err != nil {
				c.deps.Logger.Printf("spawn rejected: %v", err)
			}
		case CommandRemoveAgent:
			c.world.RemoveAgent(cmd.ActorID)
		default:
			c.deps.Logger.Printf("unknown command type %q from %s", cmd.Type, cmd.ActorID)
		}
	}
	return nil
}

// Step runs one navigation tick and integrates the resulting steering
// into the world.
func (c *Core) Step(now time.Time, dt float64) {
	if c == nil {
		return
	}
	c.tick++
	input := nav.FrameInput{
		Tick:   c.tick,
		Dt:     dt,
		Agents: c.world.FrameAgents(),
		Edits:  c.pendingEdits,
	}
	c.pendingEdits = nil

	out := c.pipeline.Step(input)
	if dt <= 0 {
		dt = 1.0 / float64(c.pipeline.Tuning().TickRate)
	}
	c.world.ApplySteering(out.Steering, dt)
	c.lastGoals = out.Goals
}

// Snapshot renders the current world state in broadcast order.
func (c *Core) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	agents := c.world.Agents()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		view := AgentView{
			ID:       a.ID,
			X:        a.Pos.X,
			Y:        a.Pos.Y,
			VX:       a.Vel.X,
			VY:       a.Vel.Y,
			Radius:   a.Radius,
			Group:    a.Group,
			Priority: a.Priority,
			HasGoal:  a.HasGoal,
		}
		if a.HasGoal {
			view.GoalCol = a.Goal.Col
			view.GoalRow = a.Goal.Row
		}
		views = append(views, view)
	}

	goals := make([]GoalView, 0, len(c.lastGoals))
	for _, g := range c.lastGoals {
		goals = append(goals, GoalView{Col: g.Goal.Col, Row: g.Goal.Row, Status: g.Status})
	}

	grid := c.world.Grid()
	return Snapshot{
		Tick:   c.tick,
		Cols:   grid.Cols(),
		Rows:   grid.Rows(),
		Agents: views,
		Goals:  goals,
	}
}

var _ EngineCore = (*Core)(nil)
