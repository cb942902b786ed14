package main

import (
	"bytes"
	"context"
	"reading-room/domain"
	"reading-room/domain/event"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrinter_RendersRoomEvents(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	p := newPrinter(&out, "alice", false)
	ctx := context.Background()

	// Given a handful of room events
	events := []event.DomainEvent{
		event.PeerList{Room: "poetry", Peers: []domain.UserID{"bob"}},
		event.UserJoined{Room: "poetry", Participant: domain.PublicParticipant{UserID: "carol", DisplayIdentity: "Carol"}},
		event.MessagePosted{Message: domain.ChatMessage{ID: "m1", RoomID: "poetry", Sender: domain.PublicParticipant{DisplayIdentity: "Bob"}, Text: "***", IsFlagged: true}},
		event.TypingStarted{Room: "poetry", User: "alice"},
		event.UserLeft{Room: "poetry", Participant: domain.PublicParticipant{UserID: "carol", DisplayIdentity: "Carol"}, Reason: domain.LeaveReason("left")},
	}

	// When they are printed
	for _, e := range events {
		req.NoError(p.Consume(ctx, e))
	}

	// Then each shows on its own line and our own typing is not echoed
	req.Equal("in poetry with: bob\n"+
		"Carol joined\n"+
		"[m1] Bob: *** [flagged]\n"+
		"Carol left (left)\n", out.String())
}

func TestJoinUsers_Empty(t *testing.T) {
	require.Equal(t, "nobody", joinUsers(nil))
}
