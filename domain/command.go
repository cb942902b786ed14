package domain

import (
	"encoding/json"
)

// Command is an intent routed to the single writer of a room.
type Command interface {
	RoomID() RoomID
}

// Reply carries the outcome of a command back to the caller waiting on it.
type Reply[T any] struct {
	Value T
	Err   error
}

type LeaveReason string

const (
	LeaveExplicit   LeaveReason = "leave"
	LeaveDisconnect LeaveReason = "disconnect"
	// LeaveReplaced is the synthetic leave of a connection superseded by a newer one of the same user.
	LeaveReplaced   LeaveReason = "replaced"
)

type JoinRoomCommand struct {
	Room        RoomID
	Participant Participant
	Reply       chan Reply[JoinResult]
}

func (c JoinRoomCommand) RoomID() RoomID { return c.Room }

type LeaveRoomCommand struct {
	Room       RoomID
	Connection ConnectionID
	Reason     LeaveReason
	Reply      chan Reply[struct{}] // may be nil
}

func (c LeaveRoomCommand) RoomID() RoomID { return c.Room }

type PostMessageCommand struct {
	Room       RoomID
	Connection ConnectionID
	Text       string
	ClientRef  string
	Reply      chan Reply[ChatMessage]
}

func (c PostMessageCommand) RoomID() RoomID { return c.Room }

type DeleteMessageCommand struct {
	Room       RoomID
	Connection ConnectionID
	MessageID  string
	Reply      chan Reply[struct{}]
}

func (c DeleteMessageCommand) RoomID() RoomID { return c.Room }

type RelaySignalCommand struct {
	Room       RoomID
	Connection ConnectionID
	Target     UserID
	Payload    json.RawMessage
}

func (c RelaySignalCommand) RoomID() RoomID { return c.Room }

type TypingCommand struct {
	Room       RoomID
	Connection ConnectionID
	Typing     bool
}

func (c TypingCommand) RoomID() RoomID { return c.Room }
