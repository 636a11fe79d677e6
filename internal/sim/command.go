package sim

import "time"

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandSetGroupGoal CommandType = "SetGroupGoal"
	CommandSetAgentGoal CommandType = "SetAgentGoal"
	CommandClearGoal    CommandType = "ClearGoal"
	CommandEditCell     CommandType = "EditCell"
	CommandSpawnAgent   CommandType = "SpawnAgent"
	CommandRemoveAgent  CommandType = "RemoveAgent"
)

// GoalCommand identifies a destination cell for a group or a single
// agent.
type GoalCommand struct {
	Group uint32 `json:"group"`
	Col   int    `json:"col"`
	Row   int    `json:"row"`
}

// EditCommand toggles a cell's walkability or reassigns its terrain
// cost. TerrainCost is ignored when Walkable is false.
type EditCommand struct {
	Col         int     `json:"col"`
	Row         int     `json:"row"`
	Walkable    bool    `json:"walkable"`
	TerrainCost float64 `json:"terrainCost"`
}

// SpawnCommand places a new agent in the world. An empty ID asks the
// world to assign one.
type SpawnCommand struct {
	ID       string  `json:"id,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Group    uint32  `json:"group"`
	Priority uint32  `json:"priority"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64        `json:"originTick"`
	ActorID    string        `json:"actorId"`
	Type       CommandType   `json:"type"`
	IssuedAt   time.Time     `json:"issuedAt"`
	Goal       *GoalCommand  `json:"goal,omitempty"`
	Edit       *EditCommand  `json:"edit,omitempty"`
	Spawn      *SpawnCommand `json:"spawn,omitempty"`
}
