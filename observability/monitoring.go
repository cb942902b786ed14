package observability

import (
	"runtime"
	"sync"
	"time"
)

// MonitoringStats is the snapshot served by the health endpoint.
type MonitoringStats struct {
	Status       string    `json:"status"`
	Connections  int       `json:"connections"`
	Rooms        int       `json:"rooms"`
	Participants int       `json:"participants"`
	RSSBytes     uint64    `json:"rss_bytes"`
	CPUPercent   float64   `json:"cpu_percent"`
	Goroutines   int       `json:"goroutines"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MonitoringManager keeps the latest heartbeat snapshot
type MonitoringManager struct {
	mu          sync.RWMutex
	latestStats MonitoringStats
	startedAt   time.Time
}

func NewMonitoringManager() *MonitoringManager {
	now := time.Now().UTC()
	return &MonitoringManager{
		startedAt:   now,
		latestStats: MonitoringStats{Status: "starting", UpdatedAt: now},
	}
}

// Update stores a new snapshot and mirrors it into the prometheus gauges.
func (m *MonitoringManager) Update(stats MonitoringStats) {
	stats.Status = "ok"
	stats.Goroutines = runtime.NumGoroutine()
	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.latestStats = stats
	m.mu.Unlock()

	ConnectionsActive.Set(float64(stats.Connections))
	ParticipantsActive.Set(float64(stats.Participants))
	ProcessRSSBytes.Set(float64(stats.RSSBytes))
	ProcessCPUPercent.Set(stats.CPUPercent)
}

func (m *MonitoringManager) GetLatest() MonitoringStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestStats
}

func (m *MonitoringManager) Uptime() time.Duration {
	return time.Since(m.startedAt)
}
