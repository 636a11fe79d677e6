package intake

import (
	"testing"
	"time"

	server "crowdmarch/server"
	"crowdmarch/server/internal/net/proto"
	"crowdmarch/server/internal/sim"
)

type fakeEngine struct {
	queued []sim.Command
	reason string
}

func (f *fakeEngine) Enqueue(cmd sim.Command) (bool, string) {
	if f.reason != "" {
		return false, f.reason
	}
	f.queued = append(f.queued, cmd)
	return true, ""
}

func (f *fakeEngine) Advance(sim.LoopTickContext) sim.LoopStepResult { return sim.LoopStepResult{} }
func (f *fakeEngine) Run(<-chan struct{})                            {}
func (f *fakeEngine) Snapshot() sim.Snapshot                         { return sim.Snapshot{} }
func (f *fakeEngine) Pending() int                                   { return len(f.queued) }
func (f *fakeEngine) Deps() sim.Deps                                 { return sim.Deps{} }

func TestStageClientCommandStampsAttribution(t *testing.T) {
	engine := &fakeEngine{}
	issued := time.Unix(42, 0)
	ctx := CommandContext{
		Engine: engine,
		Tick:   func() uint64 { return 17 },
		Now:    func() time.Time { return issued },
	}

	cmd, ok, reason := StageClientCommand(ctx, "client-3", proto.ClientMessage{
		Type: proto.TypeCommand,
		Cmd:  proto.CmdSetGroupGoal,
		Goal: &sim.GoalCommand{Group: 1, Col: 5, Row: 5},
	})
	if !ok || reason != "" {
		t.Fatalf("stage = (%v, %q)", ok, reason)
	}
	if cmd.ActorID != "client-3" {
		t.Fatalf("group command actor = %q, want issuing client", cmd.ActorID)
	}
	if cmd.OriginTick != 17 || !cmd.IssuedAt.Equal(issued) {
		t.Fatalf("timing not stamped: tick=%d issuedAt=%v", cmd.OriginTick, cmd.IssuedAt)
	}
	if len(engine.queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(engine.queued))
	}
}

func TestStageClientCommandKeepsAgentActor(t *testing.T) {
	engine := &fakeEngine{}
	cmd, ok, _ := StageClientCommand(CommandContext{Engine: engine}, "client-9", proto.ClientMessage{
		Type:  proto.TypeCommand,
		Cmd:   proto.CmdRemoveAgent,
		Agent: "agent-000002",
	})
	if !ok {
		t.Fatal("stage rejected a valid command")
	}
	if cmd.ActorID != "agent-000002" {
		t.Fatalf("agent command actor = %q, want target agent", cmd.ActorID)
	}
}

func TestStageClientCommandRejectsMalformed(t *testing.T) {
	engine := &fakeEngine{}
	_, ok, reason := StageClientCommand(CommandContext{Engine: engine}, "client-1", proto.ClientMessage{
		Type: proto.TypeCommand,
		Cmd:  proto.CmdSetAgentGoal,
	})
	if ok || reason != server.CommandRejectInvalidCommand {
		t.Fatalf("stage = (%v, %q), want invalid_command", ok, reason)
	}
	if len(engine.queued) != 0 {
		t.Fatal("malformed command reached the engine")
	}
}

func TestStageClientCommandPropagatesQueueReason(t *testing.T) {
	engine := &fakeEngine{reason: sim.CommandRejectQueueLimit}
	_, ok, reason := StageClientCommand(CommandContext{Engine: engine}, "client-1", proto.ClientMessage{
		Type:  proto.TypeCommand,
		Cmd:   proto.CmdClearGoal,
		Agent: "agent-000001",
	})
	if ok || reason != sim.CommandRejectQueueLimit {
		t.Fatalf("stage = (%v, %q), want queue_limit", ok, reason)
	}
}
