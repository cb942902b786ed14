package sink_test

import (
	"context"
	"log/slog"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/sink"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskSink_Consume_KeepsOnlyArchivedEvents(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewDiskSink(10, slog.New(slog.DiscardHandler))

	// Given a mix of room events
	req.NoError(s.Consume(ctx, event.MessagePosted{Message: domain.ChatMessage{ID: "m1", RoomID: "poetry", Text: "hello"}}))
	req.NoError(s.Consume(ctx, event.MessagePosted{Message: domain.ChatMessage{ID: "m2", RoomID: "poetry", IsSystem: true}}))
	req.NoError(s.Consume(ctx, event.TypingStarted{Room: "poetry", User: "alice"}))
	req.NoError(s.Consume(ctx, event.MessageDeleted{Room: "poetry", MessageID: "m1", DeletedBy: "alice"}))

	// Then only the user message and the deletion are queued
	req.Len(s.Events(), 2)
	req.IsType(event.MessagePosted{}, <-s.Events())
	req.IsType(event.MessageDeleted{}, <-s.Events())
}

func TestDiskSink_Consume_FullQueueNeverBlocks(t *testing.T) {
	req := require.New(t)
	s := sink.NewDiskSink(1, slog.New(slog.DiscardHandler))
	msg := event.MessagePosted{Message: domain.ChatMessage{ID: "m1", RoomID: "poetry"}}

	req.NoError(s.Consume(context.Background(), msg))
	req.NoError(s.Consume(context.Background(), msg))
	req.Len(s.Events(), 1)
}
