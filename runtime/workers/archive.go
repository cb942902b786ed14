package workers

import (
	"context"
	"fmt"
	"log/slog"
	"reading-room/contract"
	"reading-room/domain/event"
	"reading-room/observability"
)

// ArchiveWorker persists what the DiskSink queued. Failures are logged and counted, never retried.
type ArchiveWorker struct {
	archive contract.IMessageArchive
	events  <-chan event.DomainEvent
	log     *slog.Logger
}

func NewArchiveWorker(archive contract.IMessageArchive, events <-chan event.DomainEvent, log *slog.Logger) *ArchiveWorker {
	return &ArchiveWorker{archive: archive, events: events, log: log}
}

func (w *ArchiveWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.events:
			if !ok {
				return nil
			}
			w.store(e)
		}
	}
}

func (w *ArchiveWorker) store(e event.DomainEvent) {
	var err error
	switch evt := e.(type) {
	case event.MessagePosted:
		err = w.archive.StoreMessage(evt.Message)
	case event.MessageDeleted:
		err = w.archive.MarkDeleted(evt.Room, evt.MessageID, evt.DeletedBy)
	default:
		w.log.Debug(fmt.Sprintf("Not archived event : %v", evt.Type()))
		return
	}
	if err != nil {
		observability.ArchiveWrites.WithLabelValues("failed").Inc()
		w.log.Error("Unable to archive event", "room_id", e.RoomID(), "type", e.Type(), "error", err)
		return
	}
	observability.ArchiveWrites.WithLabelValues("stored").Inc()
}
