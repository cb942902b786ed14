package event

import (
	"encoding/json"
	"reading-room/domain"
	"reading-room/errors"
)

type Type string

// Wire names of the server to client events.
const (
	PeerListType       Type = "peerList"
	UserJoinedType     Type = "userJoined"
	UserLeftType       Type = "userLeft"
	MessageType        Type = "message"
	MessageDeletedType Type = "messageDeleted"
	SignalType         Type = "signal"
	TypingStartType    Type = "typingStart"
	TypingStopType     Type = "typingStop"
	ErrorType          Type = "error"
)

type DomainEvent interface {
	RoomID() domain.RoomID
	Type() Type
}

type PeerList struct {
	Room  domain.RoomID
	Peers []domain.UserID
}

func (e PeerList) RoomID() domain.RoomID { return e.Room }
func (PeerList) Type() Type              { return PeerListType }

type UserJoined struct {
	Room        domain.RoomID
	Participant domain.PublicParticipant
}

func (e UserJoined) RoomID() domain.RoomID { return e.Room }
func (UserJoined) Type() Type              { return UserJoinedType }

type UserLeft struct {
	Room        domain.RoomID
	Participant domain.PublicParticipant
	Reason      domain.LeaveReason
}

func (e UserLeft) RoomID() domain.RoomID { return e.Room }
func (UserLeft) Type() Type              { return UserLeftType }

// MessagePosted carries ClientRef only towards the sender, so it can reconcile its local echo.
type MessagePosted struct {
	Message   domain.ChatMessage
	ClientRef string
}

func (e MessagePosted) RoomID() domain.RoomID { return e.Message.RoomID }
func (MessagePosted) Type() Type              { return MessageType }

type MessageDeleted struct {
	Room      domain.RoomID
	MessageID string
	DeletedBy domain.UserID
}

func (e MessageDeleted) RoomID() domain.RoomID { return e.Room }
func (MessageDeleted) Type() Type              { return MessageDeletedType }

type SignalRelayed struct {
	Room   domain.RoomID
	From   domain.UserID
	Signal json.RawMessage
}

func (e SignalRelayed) RoomID() domain.RoomID { return e.Room }
func (SignalRelayed) Type() Type              { return SignalType }

type TypingStarted struct {
	Room domain.RoomID
	User domain.UserID
}

func (e TypingStarted) RoomID() domain.RoomID { return e.Room }
func (TypingStarted) Type() Type              { return TypingStartType }

type TypingStopped struct {
	Room domain.RoomID
	User domain.UserID
}

func (e TypingStopped) RoomID() domain.RoomID { return e.Room }
func (TypingStopped) Type() Type              { return TypingStopType }

// Rejected is sent to the originating connection only.
type Rejected struct {
	Room        domain.RoomID
	RequestType string
	Code        errors.Code
	Reason      string
}

func (e Rejected) RoomID() domain.RoomID { return e.Room }
func (Rejected) Type() Type              { return ErrorType }

func NewRejected(room domain.RoomID, requestType string, err error) Rejected {
	return Rejected{
		Room:        room,
		RequestType: requestType,
		Code:        errors.CodeOf(err),
		Reason:      err.Error(),
	}
}
