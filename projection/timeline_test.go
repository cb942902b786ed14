package projection

import (
	"context"
	"reading-room/domain"
	"reading-room/domain/event"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.PublicParticipant{UserID: "alice", DisplayIdentity: "Alice", Role: domain.RoleListener}
	clara = domain.PublicParticipant{UserID: "clara", DisplayIdentity: "Clara", Role: domain.RoleListener}
)

func posted(id string, seq uint64, sender domain.PublicParticipant, clientRef string) event.MessagePosted {
	return event.MessagePosted{
		Message:   domain.ChatMessage{ID: id, RoomID: "poetry", Seq: seq, Sender: sender, Text: "Hello " + id},
		ClientRef: clientRef,
	}
}

func ids(entries []Entry) []string {
	return lo.Map(entries, func(e Entry, _ int) string { return e.ID })
}

func TestTimeline_Consume_OrdersBySeq(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("bob")
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, posted("m2", 2, clara, "")))
	req.NoError(timeline.Consume(ctx, posted("m1", 1, alice, "")))
	req.NoError(timeline.Consume(ctx, posted("m3", 3, alice, "")))

	req.Equal([]string{"m1", "m2", "m3"}, ids(timeline.Messages()))
}

func TestTimeline_Consume_IgnoresDuplicates(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("bob")
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, posted("m1", 1, alice, "")))
	req.NoError(timeline.Consume(ctx, posted("m1", 1, alice, "")))

	req.Len(timeline.Messages(), 1)
}

func TestTimeline_ReconcilesLocalEcho(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	ctx := context.Background()

	// Given a message shown before the server answered
	timeline.AddLocal("local-1", alice, "Hello m2")
	req.NoError(timeline.Consume(ctx, posted("m1", 1, clara, "")))

	entries := timeline.Messages()
	req.Len(entries, 2)
	req.True(entries[1].Pending)

	// When the server echoes it back
	req.NoError(timeline.Consume(ctx, posted("m2", 2, alice, "local-1")))

	// Then the echo takes its sequenced place
	entries = timeline.Messages()
	req.Equal([]string{"m1", "m2"}, ids(entries))
	req.False(entries[1].Pending)
	req.Equal("local-1", entries[1].ClientRef)
}

func TestTimeline_Consume_MessageDeleted(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("bob")
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, posted("m1", 1, alice, "")))
	req.NoError(timeline.Consume(ctx, posted("m2", 2, clara, "")))
	req.NoError(timeline.Consume(ctx, event.MessageDeleted{Room: "poetry", MessageID: "m1", DeletedBy: "alice"}))

	req.Equal([]string{"m2"}, ids(timeline.Messages()))
}
