// Package domain contains core concepts of the reading room coordination layer.
// This file defines chat messages as they are broadcast to a room.
// Messages are immutable once sequenced.
package domain

import "time"

// ChatMessage is the transient broadcast copy of a message. The durable copy belongs to the data store.
type ChatMessage struct {
	ID        string
	RoomID    RoomID
	Seq       uint64 // per room, strictly increasing
	Sender    PublicParticipant
	Text      string
	CreatedAt time.Time
	IsSystem  bool
	IsFlagged bool
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Accepted bool
	Members  []PublicParticipant
}
