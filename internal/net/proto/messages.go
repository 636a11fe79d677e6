package proto

import (
	"crowdmarch/server/internal/sim"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for outbound websocket payloads.
	TypeCommandAck    = "commandAck"
	TypeCommandReject = "commandReject"
	TypeHeartbeat     = "heartbeat"
	TypeState         = "state"
)

// Client message type identifiers.
const (
	TypeCommand         = "command"
	TypeHeartbeatClient = "heartbeat"
)

// Client command identifiers carried in ClientMessage.Cmd.
const (
	CmdSetGroupGoal = "setGroupGoal"
	CmdSetAgentGoal = "setAgentGoal"
	CmdClearGoal    = "clearGoal"
	CmdEditCell     = "editCell"
	CmdSpawnAgent   = "spawnAgent"
	CmdRemoveAgent  = "removeAgent"
)

// ClientMessage captures an inbound websocket message from the client.
// Command payloads reuse the simulation structs so staging does not
// re-map fields.
type ClientMessage struct {
	Ver    int               `json:"ver,omitempty"`
	Type   string            `json:"type"`
	Cmd    string            `json:"cmd,omitempty"`
	Agent  string            `json:"agent,omitempty"`
	Goal   *sim.GoalCommand  `json:"goal,omitempty"`
	Edit   *sim.EditCommand  `json:"edit,omitempty"`
	Spawn  *sim.SpawnCommand `json:"spawn,omitempty"`
	SentAt int64             `json:"sentAt,omitempty"`
	Seq    *uint64           `json:"seq,omitempty"`
}

// CommandAckMessage confirms a sequenced command was queued.
type CommandAckMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
	Tick uint64 `json:"tick,omitempty"`
}

// CommandRejectMessage reports why a command was not queued. Retry is
// set when the rejection is transient back-pressure.
type CommandRejectMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Seq    uint64 `json:"seq"`
	Reason string `json:"reason"`
	Retry  bool   `json:"retry,omitempty"`
}

// HeartbeatMessage echoes a client heartbeat with the server clock.
type HeartbeatMessage struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}

// ClientCommand converts a parsed client envelope into a simulation
// command. The boolean is false when the payload is malformed for its
// declared command.
func ClientCommand(msg ClientMessage) (sim.Command, bool) {
	var cmd sim.Command
	switch msg.Cmd {
	case CmdSetGroupGoal:
		if msg.Goal == nil {
			return cmd, false
		}
		goal := *msg.Goal
		cmd.Type = sim.CommandSetGroupGoal
		cmd.Goal = &goal
	case CmdSetAgentGoal:
		if msg.Goal == nil || msg.Agent == "" {
			return cmd, false
		}
		goal := *msg.Goal
		cmd.Type = sim.CommandSetAgentGoal
		cmd.Goal = &goal
		cmd.ActorID = msg.Agent
	case CmdClearGoal:
		if msg.Agent == "" {
			return cmd, false
		}
		cmd.Type = sim.CommandClearGoal
		cmd.ActorID = msg.Agent
	case CmdEditCell:
		if msg.Edit == nil {
			return cmd, false
		}
		edit := *msg.Edit
		cmd.Type = sim.CommandEditCell
		cmd.Edit = &edit
	case CmdSpawnAgent:
		if msg.Spawn == nil {
			return cmd, false
		}
		spawn := *msg.Spawn
		cmd.Type = sim.CommandSpawnAgent
		cmd.Spawn = &spawn
		cmd.ActorID = msg.Agent
	case CmdRemoveAgent:
		if msg.Agent == "" {
			return cmd, false
		}
		cmd.Type = sim.CommandRemoveAgent
		cmd.ActorID = msg.Agent
	default:
		return cmd, false
	}
	return cmd, true
}
