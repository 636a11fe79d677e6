package logging

import "sync"

// Metrics is a process-wide counter set fed by the simulation and read
// by the telemetry endpoint. Keys are free-form; Add accumulates and
// Store overwrites (used for gauges like tick duration).
type Metrics struct {
	mu       sync.Mutex
	counters map[string]uint64
}

func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]uint64)
	}
	m.counters[key] += delta
	m.mu.Unlock()
}

func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]uint64)
	}
	m.counters[key] = value
	m.mu.Unlock()
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]uint64, len(m.counters))
	for k, v := range m.counters {
		copied[k] = v
	}
	return copied
}
