package world

import "strings"

const (
	DefaultSeed     = "prototype"
	DefaultCols     = 64
	DefaultRows     = 64
	DefaultCellSize = 1.0
)

// ScenarioName selects the initial layout seeded into a fresh world.
type ScenarioName string

const (
	// ScenarioOpen scatters agents and obstacle cells across the grid.
	ScenarioOpen ScenarioName = "open"
	// ScenarioCorridor walls the map in half with a one-cell doorway and
	// marches every agent through it.
	ScenarioCorridor ScenarioName = "corridor"
	// ScenarioCrossing lines two groups up on opposite edges with swapped
	// destinations.
	ScenarioCrossing ScenarioName = "crossing"
)

type Config struct {
	Seed          string       `json:"seed"`
	Cols          int          `json:"cols"`
	Rows          int          `json:"rows"`
	CellSize      float64      `json:"cellSize"`
	Scenario      ScenarioName `json:"scenario"`
	AgentCount    int          `json:"agentCount"`
	GroupCount    int          `json:"groupCount"`
	AgentRadius   float64      `json:"agentRadius"`
	AgentMaxSpeed float64      `json:"agentMaxSpeed"`
	ObstacleCount int          `json:"obstacleCount"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	normalized.Seed = strings.TrimSpace(normalized.Seed)
	if normalized.Seed == "" {
		normalized.Seed = DefaultSeed
	}
	if normalized.Cols <= 0 {
		normalized.Cols = DefaultCols
	}
	if normalized.Rows <= 0 {
		normalized.Rows = DefaultRows
	}
	if normalized.CellSize <= 0 {
		normalized.CellSize = DefaultCellSize
	}
	switch normalized.Scenario {
	case ScenarioOpen, ScenarioCorridor, ScenarioCrossing:
	default:
		normalized.Scenario = ScenarioOpen
	}
	if normalized.AgentCount < 0 {
		normalized.AgentCount = 0
	}
	if normalized.GroupCount <= 0 {
		normalized.GroupCount = 1
	}
	if normalized.AgentRadius <= 0 {
		normalized.AgentRadius = 0.35
	}
	if normalized.AgentMaxSpeed <= 0 {
		normalized.AgentMaxSpeed = 1.5
	}
	if normalized.ObstacleCount < 0 {
		normalized.ObstacleCount = 0
	}
	return normalized
}

func (cfg Config) Normalized() Config {
	return cfg.normalized()
}

func DefaultConfig() Config {
	return Config{
		Seed:          DefaultSeed,
		Cols:          DefaultCols,
		Rows:          DefaultRows,
		CellSize:      DefaultCellSize,
		Scenario:      ScenarioOpen,
		AgentCount:    0,
		GroupCount:    1,
		AgentRadius:   0.35,
		AgentMaxSpeed: 1.5,
		ObstacleCount: 0,
	}
}
