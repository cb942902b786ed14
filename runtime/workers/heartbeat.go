package workers

import (
	"context"
	"log/slog"
	"os"
	"reading-room/contract"
	"reading-room/observability"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

const DefaultHeartbeatInterval = 5 * time.Second

type HeartbeatWorker struct {
	log        *slog.Logger
	registry   contract.IRegistry
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewHeartbeatWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	monitoring *observability.MonitoringManager,
	interval time.Duration,
) *HeartbeatWorker {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatWorker{
		log:        log,
		registry:   registry,
		monitoring: monitoring,
		interval:   interval,
	}
}

// Run publishes presence counters and process health (CPU, RAM) on every tick.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	w.beat(p)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	sizes := w.registry.RoomSizes()
	stats := observability.MonitoringStats{
		Connections:  w.registry.ConnectionCount(),
		Rooms:        len(sizes),
		Participants: lo.Sum(lo.Values(sizes)),
	}

	rss, cpu, err := getSelfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
	} else {
		stats.RSSBytes = rss
		stats.CPUPercent = cpu
	}
	w.monitoring.Update(stats)
}

// getSelfStats retrieves memory and CPU usage for the given process.
func getSelfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
