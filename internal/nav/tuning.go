package nav

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning carries every empirically tuned constant in the navigation
// stack. Values load from crowdmarch.yaml; zero or out-of-range entries
// fall back to the defaults via Normalized.
type Tuning struct {
	// TickRate is the simulation frequency in ticks per second.
	TickRate int `yaml:"tick_rate" json:"tickRate"`
	// CellSize is the navigation grid tile side in world units.
	CellSize float64 `yaml:"cell_size" json:"cellSize"`
	// SpatialCellSize is the neighbor-query bucket side in world units.
	SpatialCellSize float64 `yaml:"spatial_cell_size" json:"spatialCellSize"`
	// DensityRefreshTicks is the cadence of density rescans. There is no
	// derived formula for this constant; tune it against real scenes.
	DensityRefreshTicks int `yaml:"density_refresh_ticks" json:"densityRefreshTicks"`
	// DensityDecay is the fraction of the previous density kept per refresh.
	DensityDecay float64 `yaml:"density_decay" json:"densityDecay"`
	// DensityWeight scales how strongly occupancy inflates flowfield edge
	// cost. Zero disables congestion routing.
	DensityWeight float64 `yaml:"density_weight" json:"densityWeight"`
	// TimeHorizon is the avoidance lookahead in seconds.
	TimeHorizon float64 `yaml:"time_horizon" json:"timeHorizon"`
	// MaxNeighbors caps half-plane constraints per agent per tick.
	MaxNeighbors int `yaml:"max_neighbors" json:"maxNeighbors"`
	// MinRadius is the clamp applied to degenerate agent radii.
	MinRadius float64 `yaml:"min_radius" json:"minRadius"`
	// ArriveScale damps desired speed once an agent's cell neighbors the
	// goal, so agents brake instead of orbiting it.
	ArriveScale float64 `yaml:"arrive_scale" json:"arriveScale"`
	// TickBudgetMillis is the per-tick wall budget; overruns are reported
	// as diagnostics, never used to cut work short.
	TickBudgetMillis int `yaml:"tick_budget_ms" json:"tickBudgetMillis"`
}

// DefaultTuning returns the committed defaults.
func DefaultTuning() Tuning {
	return Tuning{
		TickRate:            15,
		CellSize:            1.0,
		SpatialCellSize:     2.0,
		DensityRefreshTicks: 8,
		DensityDecay:        0.5,
		DensityWeight:       0.4,
		TimeHorizon:         1.5,
		MaxNeighbors:        10,
		MinRadius:           0.05,
		ArriveScale:         0.35,
		TickBudgetMillis:    33,
	}
}

// Normalized replaces unset or out-of-range fields with defaults.
func (t Tuning) Normalized() Tuning {
	def := DefaultTuning()
	if t.TickRate <= 0 {
		t.TickRate = def.TickRate
	}
	if t.CellSize <= 0 {
		t.CellSize = def.CellSize
	}
	if t.SpatialCellSize <= 0 {
		t.SpatialCellSize = def.SpatialCellSize
	}
	if t.DensityRefreshTicks <= 0 {
		t.DensityRefreshTicks = def.DensityRefreshTicks
	}
	if t.DensityDecay < 0 || t.DensityDecay >= 1 {
		t.DensityDecay = def.DensityDecay
	}
	if t.DensityWeight < 0 {
		t.DensityWeight = def.DensityWeight
	}
	if t.TimeHorizon <= 0 {
		t.TimeHorizon = def.TimeHorizon
	}
	if t.MaxNeighbors <= 0 {
		t.MaxNeighbors = def.MaxNeighbors
	}
	if t.MinRadius <= 0 {
		t.MinRadius = def.MinRadius
	}
	if t.ArriveScale <= 0 || t.ArriveScale > 1 {
		t.ArriveScale = def.ArriveScale
	}
	if t.TickBudgetMillis <= 0 {
		t.TickBudgetMillis = def.TickBudgetMillis
	}
	return t
}

// LoadTuning reads a yaml tuning file. A missing file is not an error;
// callers get the defaults.
func LoadTuning(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTuning(), nil
		}
		return DefaultTuning(), err
	}
	var t Tuning
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return DefaultTuning(), fmt.Errorf("tuning %s: %w", path, err)
	}
	return t.Normalized(), nil
}
