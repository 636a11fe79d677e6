package intake

import (
	"time"

	server "crowdmarch/server"
	"crowdmarch/server/internal/net/proto"
	"crowdmarch/server/internal/sim"
)

// CommandContext supplies everything command staging needs from the hub
// without closing over it.
type CommandContext struct {
	Engine sim.Engine
	Tick   func() uint64
	Now    func() time.Time
}

// StageClientCommand validates a client envelope, stamps attribution and
// timing, and enqueues the resulting command. The reason string is
// non-empty when staging failed.
func StageClientCommand(ctx CommandContext, clientID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok := proto.ClientCommand(msg)
	if !ok {
		return zero, false, server.CommandRejectInvalidCommand
	}

	// Group-level commands are attributed to the issuing client; agent
	// commands already carry the target agent as actor.
	if command.ActorID == "" {
		command.ActorID = clientID
	}
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Engine == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Engine.Enqueue(command); !ok {
		return zero, false, reason
	}

	return command, true, ""
}
