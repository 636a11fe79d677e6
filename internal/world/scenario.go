package world

import "crowdmarch/server/internal/nav"

// seedScenario lays out terrain and agents for a fresh world. All
// placement draws from labeled subsystem RNG streams, so layouts depend
// only on the config.
func seedScenario(w *World) {
	switch w.cfg.Scenario {
	case ScenarioCorridor:
		seedCorridor(w)
	case ScenarioCrossing:
		seedCrossing(w)
	default:
		seedOpen(w)
	}
}

func seedOpen(w *World) {
	grid := w.grid
	cols, rows := grid.Cols(), grid.Rows()

	terrain := w.SubsystemRNG("terrain.obstacles")
	for i := 0; i < w.cfg.ObstacleCount; i++ {
		cell := nav.Cell{Col: terrain.Intn(cols), Row: terrain.Intn(rows)}
		grid.SetWalkable(cell, false)
	}

	scatter := w.SubsystemRNG("agents.scatter")
	spawned := 0
	for attempts := 0; spawned < w.cfg.AgentCount && attempts < w.cfg.AgentCount*20; attempts++ {
		cell := nav.Cell{Col: scatter.Intn(cols), Row: scatter.Intn(rows)}
		if !grid.Cell(cell).Walkable {
			continue
		}
		group := uint32(spawned % w.cfg.GroupCount)
		if _, err := w.SpawnAgent("", grid.CellCenter(cell), group, group); err == nil {
			spawned++
		}
	}
}

// seedCorridor builds a full-height wall with a single doorway cell and
// stacks every agent on the left side. Goals are issued by the caller;
// the layout alone does not move anyone.
func seedCorridor(w *World) {
	grid := w.grid
	cols, rows := grid.Cols(), grid.Rows()
	wallCol := cols / 2
	doorRow := rows / 2
	for row := 0; row < rows; row++ {
		if row == doorRow {
			continue
		}
		grid.SetWalkable(nav.Cell{Col: wallCol, Row: row}, false)
	}

	spawned := 0
	for row := 1; row < rows-1 && spawned < w.cfg.AgentCount; row++ {
		for col := 1; col < wallCol-1 && spawned < w.cfg.AgentCount; col++ {
			w.SpawnAgent("", grid.CellCenter(nav.Cell{Col: col, Row: row}), 0, 0)
			spawned++
		}
	}
}

// seedCrossing lines two groups up along the left and right edges facing
// each other.
func seedCrossing(w *World) {
	grid := w.grid
	cols, rows := grid.Cols(), grid.Rows()
	perGroup := w.cfg.AgentCount / 2

	spawned := 0
	for row := 1; row < rows-1 && spawned < perGroup; row++ {
		w.SpawnAgent("", grid.CellCenter(nav.Cell{Col: 1, Row: row}), 0, 0)
		spawned++
	}
	spawned = 0
	for row := 1; row < rows-1 && spawned < w.cfg.AgentCount-perGroup; row++ {
		w.SpawnAgent("", grid.CellCenter(nav.Cell{Col: cols - 2, Row: row}), 1, 1)
		spawned++
	}
}
