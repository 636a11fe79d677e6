package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/websocket"

	server "crowdmarch/server"
	"crowdmarch/server/internal/net/intake"
	"crowdmarch/server/internal/net/proto"
	"crowdmarch/server/internal/observability"
	"crowdmarch/server/internal/sim"
)

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        *log.Logger
	Observability observability.Config
}

// NewHTTPHandler exposes the hub over HTTP: join, diagnostics, config,
// and the websocket stream.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snapshot := hub.Snapshot()
		payload := struct {
			Status        string `json:"status"`
			ServerTime    int64  `json:"serverTime"`
			UptimeSeconds int64  `json:"uptimeSeconds"`
			Tick          uint64 `json:"tick"`
			Agents        int    `json:"agents"`
			TickRate      int    `json:"tickRate"`
			Clients       any    `json:"clients"`
			Telemetry     any    `json:"telemetry"`
			Metrics       any    `json:"metrics"`
		}{
			Status:        "ok",
			ServerTime:    time.Now().UnixMilli(),
			UptimeSeconds: int64(hub.Uptime().Seconds()),
			Tick:          snapshot.Tick,
			Agents:        len(snapshot.Agents),
			TickRate:      hub.CurrentTuning().TickRate,
			Clients:       hub.DiagnosticsClients(),
			Telemetry:     hub.TelemetrySnapshot(),
			Metrics:       hub.MetricsSnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/config", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			Config any `json:"config"`
			Tuning any `json:"tuning"`
		}{
			Config: hub.CurrentConfig(),
			Tuning: hub.CurrentTuning(),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		join := hub.Join()
		data, err := json.Marshal(join)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		clientID := r.URL.Query().Get("id")
		if clientID == "" {
			httpError(w, "missing id", nethttp.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed for %s: %v", clientID, err)
			return
		}

		sub := hub.Subscribe(clientID, conn)

		initial, err := hub.MarshalState(hub.Snapshot())
		if err != nil {
			logger.Printf("marshal initial state for %s: %v", clientID, err)
			hub.Disconnect(clientID)
			return
		}
		if err := sub.Send(initial); err != nil {
			hub.Disconnect(clientID)
			return
		}

		stage := intake.CommandContext{
			Engine: hub.Engine(),
			Tick:   func() uint64 { return hub.Snapshot().Tick },
			Now:    time.Now,
		}

		writeJSON := func(payload any) bool {
			data, err := json.Marshal(payload)
			if err != nil {
				logger.Printf("marshal response for %s: %v", clientID, err)
				return true
			}
			if err := sub.Send(data); err != nil {
				hub.Disconnect(clientID)
				return false
			}
			return true
		}

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				hub.Disconnect(clientID)
				return
			}

			var msg proto.ClientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.Printf("discarding malformed message from %s: %v", clientID, err)
				continue
			}

			seq := uint64(0)
			if msg.Seq != nil {
				seq = *msg.Seq
			}

			switch msg.Type {
			case proto.TypeCommand:
				cmd, ok, reason := intake.StageClientCommand(stage, clientID, msg)
				if seq == 0 {
					if !ok && reason == server.CommandRejectInvalidCommand {
						logger.Printf("invalid command %q from %s", msg.Cmd, clientID)
					}
					continue
				}
				if ok {
					ack := proto.CommandAckMessage{
						Ver:  proto.Version,
						Type: proto.TypeCommandAck,
						Seq:  seq,
						Tick: cmd.OriginTick,
					}
					if !writeJSON(ack) {
						return
					}
				} else {
					reject := proto.CommandRejectMessage{
						Ver:    proto.Version,
						Type:   proto.TypeCommandReject,
						Seq:    seq,
						Reason: reason,
						Retry:  reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull,
					}
					if !writeJSON(reject) {
						return
					}
				}
			case proto.TypeHeartbeatClient:
				ack := proto.HeartbeatMessage{
					Ver:        proto.Version,
					Type:       proto.TypeHeartbeat,
					ServerTime: time.Now().UnixMilli(),
					ClientTime: msg.SentAt,
				}
				if !writeJSON(ack) {
					return
				}
			default:
				logger.Printf("unknown message type %q from %s", msg.Type, clientID)
			}
		}
	})

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
