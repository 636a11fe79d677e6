package sim

import "time"

// EngineCore is the single-threaded simulation kernel driven by a Loop.
// Implementations are not goroutine-safe; the loop serializes all calls.
type EngineCore interface {
	Deps() Deps
	Apply([]Command) error
	Step(now time.Time, dt float64)
	Tick() uint64
	Snapshot() Snapshot
}

// Engine defines the surface area exposed to non-simulation callers.
type Engine interface {
	Enqueue(cmd Command) (bool, string)
	Advance(ctx LoopTickContext) LoopStepResult
	Run(stop <-chan struct{})
	Snapshot() Snapshot
	Pending() int
	Deps() Deps
}

// LoopTickContext carries the timing inputs for one tick.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult captures everything a tick produced, for broadcast and
// journaling.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Snapshot     Snapshot
	Commands     []Command
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// LoopHooks customizes tick sequencing and fan-out without subclassing
// the loop.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	NextTick       func() uint64
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}
