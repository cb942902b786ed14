package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Presence metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_room_connections_active",
			Help: "Open client connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_room_rooms_active",
			Help: "Rooms with a running worker",
		},
	)

	ParticipantsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_room_participants_active",
			Help: "Participants present across all rooms",
		},
	)

	// Event metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_room_events_published_total",
			Help: "Events processed by room workers",
		},
		[]string{"type"},
	)

	RequestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_room_requests_rejected_total",
			Help: "Client requests answered with an error event",
		},
		[]string{"request", "code"},
	)

	SignalsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reading_room_signals_dropped_total",
			Help: "Signaling payloads dropped because an end left the room",
		},
	)

	SlowConsumers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reading_room_slow_consumers_total",
			Help: "Connections dropped because their outbound buffer was full",
		},
	)

	RoomRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reading_room_worker_restarts_total",
			Help: "Supervised workers restarted after a crash",
		},
	)

	// Archive metrics
	ArchiveWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_room_archive_writes_total",
			Help: "Archive writes by outcome",
		},
		[]string{"outcome"},
	)

	// Queue metrics
	ChannelLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reading_room_channel_length",
			Help: "Items waiting in a server queue",
		},
		[]string{"channel"},
	)

	ChannelCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reading_room_channel_capacity",
			Help: "Capacity of a server queue",
		},
		[]string{"channel"},
	)

	// Process metrics
	ProcessRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_room_process_rss_bytes",
			Help: "Resident memory of the server process",
		},
	)

	ProcessCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reading_room_process_cpu_percent",
			Help: "CPU usage of the server process",
		},
	)
)
