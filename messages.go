package server

import (
	"crowdmarch/server/internal/sim"
	"crowdmarch/server/internal/world"
)

// ProtocolVersion gates the websocket message format. Bump it whenever a
// field changes meaning; clients on another version must rejoin.
const ProtocolVersion = 1

// CommandRejectInvalidCommand reports a malformed or unknown client
// command. Queue-pressure reasons are owned by the sim package.
const CommandRejectInvalidCommand = "invalid_command"

type joinResponse struct {
	Ver      int          `json:"ver"`
	ID       string       `json:"id"`
	Config   world.Config `json:"config"`
	TickRate int          `json:"tickRate"`
	Snapshot sim.Snapshot `json:"snapshot"`
}

func (joinResponse) ProtoJoinResponse() {}

type stateMessage struct {
	Ver        int          `json:"ver"`
	Type       string       `json:"type"`
	ServerTime int64        `json:"serverTime"`
	Snapshot   sim.Snapshot `json:"snapshot"`
}

func (stateMessage) ProtoStateSnapshot() {}

type diagnosticsClient struct {
	Ver         int    `json:"ver"`
	ID          string `json:"id"`
	ConnectedAt int64  `json:"connectedAt"`
}
