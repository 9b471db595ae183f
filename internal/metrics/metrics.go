package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex          sync.RWMutex
	sessionsOpened map[string]int64
	sessionsClosed map[string]int64
	bytesToBackend map[string]int64
	bytesToClient  map[string]int64
	dialFailures   map[string]int64
	noBackendDrops int64
	startTime      time.Time
}

type Snapshot struct {
	TotalSessions  int64                     `json:"total_sessions"`
	NoBackendDrops int64                     `json:"no_backend_drops"`
	Uptime         time.Duration             `json:"uptime"`
	Backends       map[string]BackendMetrics `json:"backends"`
	Algorithm      string                    `json:"algorithm"`
}

type BackendMetrics struct {
	SessionsOpened int64 `json:"sessions_opened"`
	SessionsClosed int64 `json:"sessions_closed"`
	BytesToBackend int64 `json:"bytes_to_backend"`
	BytesToClient  int64 `json:"bytes_to_client"`
	DialFailures   int64 `json:"dial_failures"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		sessionsOpened: make(map[string]int64),
		sessionsClosed: make(map[string]int64),
		bytesToBackend: make(map[string]int64),
		bytesToClient:  make(map[string]int64),
		dialFailures:   make(map[string]int64),
		startTime:      time.Now(),
	}
}

func (m *Metrics) RecordSessionStart(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessionsOpened[backend]++
}

func (m *Metrics) RecordSessionEnd(backend string, bytesToBackend, bytesToClient int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessionsClosed[backend]++
	m.bytesToBackend[backend] += bytesToBackend
	m.bytesToClient[backend] += bytesToClient
}

func (m *Metrics) RecordDialFailure(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dialFailures[backend]++
}

func (m *Metrics) RecordNoBackendDrop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.noBackendDrops++
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		NoBackendDrops: m.noBackendDrops,
		Uptime:         time.Since(m.startTime),
		Backends:       make(map[string]BackendMetrics),
		Algorithm:      algorithm,
	}

	allBackends := make(map[string]bool)
	for backend := range m.sessionsOpened {
		allBackends[backend] = true
	}
	for backend := range m.sessionsClosed {
		allBackends[backend] = true
	}
	for backend := range m.dialFailures {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		snap.TotalSessions += m.sessionsOpened[backend]

		snap.Backends[backend] = BackendMetrics{
			SessionsOpened: m.sessionsOpened[backend],
			SessionsClosed: m.sessionsClosed[backend],
			BytesToBackend: m.bytesToBackend[backend],
			BytesToClient:  m.bytesToClient[backend],
			DialFailures:   m.dialFailures[backend],
		}
	}

	return snap
}
