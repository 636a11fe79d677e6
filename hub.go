package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"crowdmarch/server/internal/nav"
	"crowdmarch/server/internal/replay"
	"crowdmarch/server/internal/sim"
	"crowdmarch/server/internal/telemetry"
	"crowdmarch/server/internal/world"
	"crowdmarch/server/logging"
)

const writeWait = 5 * time.Second

// HubConfig wires the world, navigation tuning, and loop parameters for
// a hub. Zero values fall back to committed defaults.
type HubConfig struct {
	World       world.Config
	Tuning      nav.Tuning
	Loop        sim.LoopConfig
	JournalPath string
	Logger      telemetry.Logger
	Metrics     *logging.Metrics
}

// DefaultHubConfig returns the configuration used by the standalone
// server binary.
func DefaultHubConfig() HubConfig {
	tuning := nav.DefaultTuning()
	return HubConfig{
		World:  world.DefaultConfig(),
		Tuning: tuning,
		Loop: sim.LoopConfig{
			TickRate:        tuning.TickRate,
			CatchupMaxTicks: 4,
			CommandCapacity: 512,
			PerActorLimit:   16,
			WarningStep:     128,
		},
		Metrics: &logging.Metrics{},
	}
}

// Hub owns the simulation loop, the replay journal, and every live
// websocket subscriber.
type Hub struct {
	mu          sync.Mutex
	cfg         HubConfig
	core        *sim.Core
	engine      sim.Engine
	subscribers map[string]*subscriber
	nextClient  atomic.Uint64
	counters    *telemetryCounters
	journal     *replay.Writer
	logger      telemetry.Logger
	metrics     *logging.Metrics
	startedAt   time.Time
}

type subscriber struct {
	id          string
	conn        *websocket.Conn
	mu          sync.Mutex
	connectedAt time.Time
}

// Send serializes all writes on the connection. A slow reader blocks at
// most writeWait before the hub drops it.
func (s *subscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// NewHub builds the world, the simulation core, and the tick loop. The
// returned hub is idle until RunSimulation is called.
func NewHub(cfg HubConfig, pub logging.Publisher) (*Hub, error) {
	cfg.World = cfg.World.Normalized()
	cfg.Tuning = cfg.Tuning.Normalized()
	if cfg.Logger == nil {
		cfg.Logger = telemetry.WrapLogger(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &logging.Metrics{}
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if cfg.Loop.TickRate <= 0 {
		cfg.Loop = DefaultHubConfig().Loop
		cfg.Loop.TickRate = cfg.Tuning.TickRate
	}

	w := world.NewWorld(cfg.World)
	core, err := sim.NewCore(w, cfg.Tuning, sim.Deps{
		Logger:    cfg.Logger,
		Metrics:   telemetry.WrapMetrics(cfg.Metrics),
		Publisher: pub,
	})
	if err != nil {
		return nil, fmt.Errorf("hub: build simulation core: %w", err)
	}

	hub := &Hub{
		cfg:         cfg,
		core:        core,
		subscribers: make(map[string]*subscriber),
		counters:    newTelemetryCounters(),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		startedAt:   time.Now(),
	}

	if cfg.JournalPath != "" {
		journal, err := replay.NewFileWriter(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("hub: open journal %s: %w", cfg.JournalPath, err)
		}
		hub.journal = journal
	}

	hub.engine = sim.NewLoop(core, cfg.Loop, sim.LoopHooks{
		AfterStep: hub.afterStep,
	})
	return hub, nil
}

// Join allocates a client identity and returns the latest snapshot so
// the client can render before the first broadcast arrives.
func (h *Hub) Join() joinResponse {
	id := fmt.Sprintf("client-%d", h.nextClient.Add(1))
	return joinResponse{
		Ver:      ProtocolVersion,
		ID:       id,
		Config:   h.cfg.World,
		TickRate: h.cfg.Loop.TickRate,
		Snapshot: h.engine.Snapshot(),
	}
}

// Subscribe associates a websocket connection with a client ID. An
// existing connection under the same ID is closed first.
func (h *Hub) Subscribe(clientID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{id: clientID, conn: conn, connectedAt: time.Now()}

	h.mu.Lock()
	if existing, ok := h.subscribers[clientID]; ok {
		existing.conn.Close()
	}
	h.subscribers[clientID] = sub
	h.mu.Unlock()

	return sub
}

// Disconnect removes a subscriber and closes its connection.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	sub, ok := h.subscribers[clientID]
	if ok {
		delete(h.subscribers, clientID)
	}
	h.mu.Unlock()

	if ok {
		sub.conn.Close()
	}
}

// EnqueueCommand forwards a command to the simulation loop. The reason
// string is non-empty when the command was rejected.
func (h *Hub) EnqueueCommand(cmd sim.Command) (bool, string) {
	return h.engine.Enqueue(cmd)
}

// Snapshot returns the latest authoritative state.
func (h *Hub) Snapshot() sim.Snapshot {
	return h.engine.Snapshot()
}

// Engine exposes the command queue to the transport layer.
func (h *Hub) Engine() sim.Engine {
	return h.engine
}

// MarshalState renders a snapshot as a broadcast-format state message.
func (h *Hub) MarshalState(snapshot sim.Snapshot) ([]byte, error) {
	return json.Marshal(stateMessage{
		Ver:        ProtocolVersion,
		Type:       "state",
		ServerTime: time.Now().UnixMilli(),
		Snapshot:   snapshot,
	})
}

// CurrentConfig reports the normalized world configuration.
func (h *Hub) CurrentConfig() world.Config {
	return h.cfg.World
}

// CurrentTuning reports the normalized navigation tuning.
func (h *Hub) CurrentTuning() nav.Tuning {
	return h.cfg.Tuning
}

// TelemetrySnapshot exposes broadcast and journal counters.
func (h *Hub) TelemetrySnapshot() telemetrySnapshot {
	return h.counters.Snapshot()
}

// DiagnosticsClients lists connected subscribers for /diagnostics.
func (h *Hub) DiagnosticsClients() []diagnosticsClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]diagnosticsClient, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		clients = append(clients, diagnosticsClient{
			Ver:         ProtocolVersion,
			ID:          sub.id,
			ConnectedAt: sub.connectedAt.UnixMilli(),
		})
	}
	return clients
}

// MetricsSnapshot exposes the shared counter map for /diagnostics.
func (h *Hub) MetricsSnapshot() map[string]uint64 {
	return h.metrics.Snapshot()
}

// Uptime reports how long the hub has existed.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// RunSimulation drives the fixed-rate tick loop until the stop channel
// closes, then flushes the replay journal.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	h.engine.Run(stop)
	if h.journal != nil {
		if err := h.journal.Close(); err != nil {
			h.logger.Printf("hub: close journal: %v", err)
		}
	}
}

// afterStep runs on the loop goroutine after every tick. It records
// telemetry, appends the tick to the journal, and fans the snapshot out
// to subscribers.
func (h *Hub) afterStep(result sim.LoopStepResult) {
	h.counters.RecordTickDuration(result.Duration)

	if h.journal != nil {
		err := h.journal.Append(replay.Record{
			Tick:     result.Tick,
			Delta:    result.Delta,
			Commands: result.Commands,
			Snapshot: result.Snapshot,
		})
		if err != nil {
			h.counters.RecordJournalError()
			h.logger.Printf("hub: journal append tick %d: %v", result.Tick, err)
		} else {
			h.counters.RecordJournalAppend()
		}
	}

	h.broadcastState(result.Snapshot, result.Now)
}

// broadcastState marshals the snapshot once and writes it to every
// subscriber. Connections that fail the write are dropped.
func (h *Hub) broadcastState(snapshot sim.Snapshot, now time.Time) {
	msg := stateMessage{
		Ver:        ProtocolVersion,
		Type:       "state",
		ServerTime: now.UnixMilli(),
		Snapshot:   snapshot,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("hub: marshal state tick %d: %v", snapshot.Tick, err)
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	sent := 0
	for _, sub := range subs {
		if err := sub.Send(payload); err != nil {
			h.logger.Printf("hub: dropping subscriber %s: %v", sub.id, err)
			h.counters.RecordDroppedSubscriber()
			h.Disconnect(sub.id)
			continue
		}
		sent++
	}
	if sent > 0 {
		h.counters.RecordBroadcast(len(payload)*sent, len(snapshot.Agents)*sent)
	}
}
