package sim

import "crowdmarch/server/internal/nav"

// AgentView mirrors one agent's authoritative state to callers.
type AgentView struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx,omitempty"`
	VY       float64 `json:"vy,omitempty"`
	Radius   float64 `json:"radius"`
	Group    uint32  `json:"group"`
	Priority uint32  `json:"priority,omitempty"`
	HasGoal  bool    `json:"hasGoal,omitempty"`
	GoalCol  int     `json:"goalCol,omitempty"`
	GoalRow  int     `json:"goalRow,omitempty"`
}

// GoalView reports the latest build status for a requested goal cell.
type GoalView struct {
	Col    int             `json:"col"`
	Row    int             `json:"row"`
	Status nav.BuildStatus `json:"status"`
}

// Snapshot captures the state exposed to non-simulation callers. Agents
// are ordered by ID and goals by (row, col), so serialized snapshots are
// byte-stable for identical states.
type Snapshot struct {
	Tick   uint64      `json:"tick"`
	Cols   int         `json:"cols"`
	Rows   int         `json:"rows"`
	Agents []AgentView `json:"agents,omitempty"`
	Goals  []GoalView  `json:"goals,omitempty"`
}
