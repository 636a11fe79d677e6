package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	server "crowdmarch/server"
	"crowdmarch/server/internal/net/proto"
	"crowdmarch/server/internal/sim"
)

func newTestHub(t *testing.T) *server.Hub {
	t.Helper()
	hub, err := server.NewHub(server.DefaultHubConfig(), nil)
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return hub
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}
}

func TestJoinAssignsDistinctClientIDs(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	join := func() string {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/join", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.Code)
		}
		var payload struct {
			Ver int    `json:"ver"`
			ID  string `json:"id"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode join: %v", err)
		}
		if payload.Ver != server.ProtocolVersion {
			t.Fatalf("ver = %d, want %d", payload.Ver, server.ProtocolVersion)
		}
		return payload.ID
	}

	first := join()
	second := join()
	if first == "" || first == second {
		t.Fatalf("ids = %q, %q, want distinct non-empty", first, second)
	}
}

func TestJoinRejectsGet(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/join", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.Code)
	}
}

func TestDiagnosticsReportsState(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if status, _ := payload["status"].(string); status != "ok" {
		t.Fatalf("status field = %v, want ok", payload["status"])
	}
	if _, ok := payload["telemetry"]; !ok {
		t.Fatal("diagnostics payload missing telemetry")
	}
	if _, ok := payload["tickRate"]; !ok {
		t.Fatal("diagnostics payload missing tickRate")
	}
}

func TestWebsocketRequiresClientID(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestWebsocketDeliversStateAndAcksCommands(t *testing.T) {
	hub := newTestHub(t)
	srv := httptest.NewServer(NewHTTPHandler(hub, HTTPHandlerConfig{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=client-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	var state struct {
		Type string `json:"type"`
		Ver  int    `json:"ver"`
	}
	if err := json.Unmarshal(payload, &state); err != nil {
		t.Fatalf("decode initial state: %v", err)
	}
	if state.Type != proto.TypeState || state.Ver != proto.Version {
		t.Fatalf("initial message = %+v, want versioned state", state)
	}

	seq := uint64(1)
	msg := proto.ClientMessage{
		Type: proto.TypeCommand,
		Cmd:  proto.CmdSetGroupGoal,
		Goal: &sim.GoalCommand{Group: 0, Col: 3, Row: 3},
		Seq:  &seq,
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write command: %v", err)
	}

	_, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	var ack proto.CommandAckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Type != proto.TypeCommandAck || ack.Seq != 1 {
		t.Fatalf("ack = %+v, want commandAck seq 1", ack)
	}
	if hub.Engine().Pending() != 1 {
		t.Fatalf("pending = %d, want the queued goal order", hub.Engine().Pending())
	}
}

func TestWebsocketRejectsMalformedCommand(t *testing.T) {
	hub := newTestHub(t)
	srv := httptest.NewServer(NewHTTPHandler(hub, HTTPHandlerConfig{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?id=client-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read initial state: %v", err)
	}

	seq := uint64(7)
	if err := conn.WriteJSON(proto.ClientMessage{Type: proto.TypeCommand, Cmd: "teleport", Seq: &seq}); err != nil {
		t.Fatalf("write command: %v", err)
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read reject: %v", err)
	}
	var reject proto.CommandRejectMessage
	if err := json.Unmarshal(payload, &reject); err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if reject.Type != proto.TypeCommandReject || reject.Seq != 7 {
		t.Fatalf("reject = %+v, want commandReject seq 7", reject)
	}
	if reject.Reason != server.CommandRejectInvalidCommand {
		t.Fatalf("reason = %q, want invalid_command", reject.Reason)
	}
	if reject.Retry {
		t.Fatal("invalid command should not be retryable")
	}
}
