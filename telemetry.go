package server

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type telemetryCounters struct {
	bytesSent           atomic.Uint64
	agentsSent          atomic.Uint64
	tickDurationMillis  atomic.Int64
	lastBroadcastBytes  atomic.Uint64
	lastBroadcastAgents atomic.Uint64
	journalRecords      atomic.Uint64
	journalErrors       atomic.Uint64
	droppedSubscribers  atomic.Uint64
	debug               bool
}

type telemetrySnapshot struct {
	BytesSent          uint64 `json:"bytesSent"`
	AgentsSent         uint64 `json:"agentsSent"`
	TickDuration       int64  `json:"tickDurationMillis"`
	JournalRecords     uint64 `json:"journalRecords"`
	JournalErrors      uint64 `json:"journalErrors"`
	DroppedSubscribers uint64 `json:"droppedSubscribers"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordBroadcast(bytes, agents int) {
	if bytes < 0 {
		bytes = 0
	}
	if agents < 0 {
		agents = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.agentsSent.Add(uint64(agents))
	t.lastBroadcastBytes.Store(uint64(bytes))
	t.lastBroadcastAgents.Store(uint64(agents))
}

func (t *telemetryCounters) RecordTickDuration(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.tickDurationMillis.Store(millis)
	if t.debug {
		fmt.Printf(
			"[telemetry] tick=%dms bytes=%d totalBytes=%d agents=%d totalAgents=%d\n",
			millis,
			t.lastBroadcastBytes.Load(),
			t.bytesSent.Load(),
			t.lastBroadcastAgents.Load(),
			t.agentsSent.Load(),
		)
	}
}

func (t *telemetryCounters) RecordJournalAppend() {
	t.journalRecords.Add(1)
}

func (t *telemetryCounters) RecordJournalError() {
	t.journalErrors.Add(1)
}

func (t *telemetryCounters) RecordDroppedSubscriber() {
	t.droppedSubscribers.Add(1)
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		BytesSent:          t.bytesSent.Load(),
		AgentsSent:         t.agentsSent.Load(),
		TickDuration:       t.tickDurationMillis.Load(),
		JournalRecords:     t.journalRecords.Load(),
		JournalErrors:      t.journalErrors.Load(),
		DroppedSubscribers: t.droppedSubscribers.Load(),
	}
}
