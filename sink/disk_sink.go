package sink

import (
	"context"
	"log/slog"
	"reading-room/domain/event"
	"reading-room/observability"
)

const DefaultArchiveBufferSize = 1024

// DiskSink is the permanent sink feeding the message archive.
// It never blocks the room worker: events are queued and written by the ArchiveWorker.
type DiskSink struct {
	events chan event.DomainEvent
	log    *slog.Logger
}

func NewDiskSink(bufferSize int, log *slog.Logger) *DiskSink {
	if bufferSize <= 0 {
		bufferSize = DefaultArchiveBufferSize
	}
	return &DiskSink{events: make(chan event.DomainEvent, bufferSize), log: log}
}

func (d *DiskSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		if evt.Message.IsSystem {
			return nil
		}
	case event.MessageDeleted:
	default:
		return nil
	}

	select {
	case d.events <- e:
	default:
		// Archive lag never slows the room down
		observability.ArchiveWrites.WithLabelValues("dropped").Inc()
		d.log.Warn("Archive queue is full, dropping event", "room_id", e.RoomID(), "type", e.Type())
	}
	return nil
}

// Events is drained by the ArchiveWorker.
func (d *DiskSink) Events() <-chan event.DomainEvent {
	return d.events
}
