package websocket

import (
	"encoding/json"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Client to server request types.
const (
	JoinRoomType      = "joinRoom"
	LeaveRoomType     = "leaveRoom"
	ChatType          = "chat"
	DeleteMessageType = "deleteMessage"
	SignalType        = "signal"
	TypingStartType   = "typingStart"
	TypingStopType    = "typingStop"
)

var validate = validator.New()

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type" validate:"required"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type ChatPayload struct {
	Text      string `json:"text" validate:"required"`
	ClientRef string `json:"clientRef" validate:"max=128"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
}

type SignalPayload struct {
	TargetID string          `json:"targetId" validate:"required,max=128"`
	Signal   json.RawMessage `json:"signal" validate:"required"`
}

// Request is a decoded and validated inbound frame.
type Request struct {
	Type    string
	Room    domain.RoomID
	Payload any
}

// DecodeRequest parses a frame. The room id may be carried by the envelope or the payload.
func DecodeRequest(data []byte) (Request, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Request{}, errors.Validation("malformed frame: %v", err)
	}
	if err := validate.Struct(envelope); err != nil {
		return Request{}, errors.Validation("%v", err)
	}

	roomID := envelope.RoomID
	if roomID == "" && len(envelope.Payload) > 0 {
		var room RoomPayload
		if err := json.Unmarshal(envelope.Payload, &room); err == nil {
			roomID = room.RoomID
		}
	}
	req := Request{Type: envelope.Type}
	room, err := domain.ParseRoomID(roomID)
	if err != nil {
		return req, err
	}
	req.Room = room

	switch envelope.Type {
	case JoinRoomType, LeaveRoomType, TypingStartType, TypingStopType:
		return req, nil
	case ChatType:
		payload, err := decodePayload[ChatPayload](envelope.Payload)
		req.Payload = payload
		return req, err
	case DeleteMessageType:
		payload, err := decodePayload[DeleteMessagePayload](envelope.Payload)
		req.Payload = payload
		return req, err
	case SignalType:
		payload, err := decodePayload[SignalPayload](envelope.Payload)
		req.Payload = payload
		return req, err
	default:
		return req, errors.Validation("unknown request type %q", envelope.Type)
	}
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var payload T
	if len(raw) == 0 {
		return payload, errors.Validation("payload is missing")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, errors.Validation("malformed payload: %v", err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, errors.Validation("%v", err)
	}
	return payload, nil
}

type ParticipantView struct {
	UserID          string `json:"userId"`
	DisplayIdentity string `json:"displayIdentity"`
	Role            string `json:"role"`
}

type PresenceView struct {
	ParticipantView
	Reason string `json:"reason,omitempty"`
}

type MessageView struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	Seq       uint64          `json:"seq"`
	Sender    ParticipantView `json:"sender"`
	Text      string          `json:"text"`
	CreatedAt time.Time       `json:"createdAt"`
	IsSystem  bool            `json:"isSystem"`
	IsFlagged bool            `json:"isFlagged"`
	ClientRef string          `json:"clientRef,omitempty"`
}

type MessageDeletedView struct {
	MessageID string `json:"messageId"`
	DeletedBy string `json:"deletedBy"`
}

type SignalView struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type TypingView struct {
	UserID string `json:"userId"`
}

type ErrorView struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"requestType,omitempty"`
}

// EncodeEvent maps a domain event onto its wire frame.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case event.PeerList:
		payload = lo.Map(evt.Peers, func(id domain.UserID, _ int) string { return string(id) })
	case event.UserJoined:
		payload = PresenceView{ParticipantView: toParticipantView(evt.Participant)}
	case event.UserLeft:
		payload = PresenceView{ParticipantView: toParticipantView(evt.Participant), Reason: string(evt.Reason)}
	case event.MessagePosted:
		payload = ToMessageView(evt.Message, evt.ClientRef)
	case event.MessageDeleted:
		payload = MessageDeletedView{MessageID: evt.MessageID, DeletedBy: string(evt.DeletedBy)}
	case event.SignalRelayed:
		payload = SignalView{From: string(evt.From), Signal: evt.Signal}
	case event.TypingStarted:
		payload = TypingView{UserID: string(evt.User)}
	case event.TypingStopped:
		payload = TypingView{UserID: string(evt.User)}
	case event.Rejected:
		payload = ErrorView{Code: string(evt.Code), Message: evt.Reason, RequestType: evt.RequestType}
	default:
		return nil, errors.Validation("event %s has no wire form", e.Type())
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: string(e.Type()), RoomID: string(e.RoomID()), Payload: raw})
}

func ToMessageView(msg domain.ChatMessage, clientRef string) MessageView {
	return MessageView{
		ID:        msg.ID,
		RoomID:    string(msg.RoomID),
		Seq:       msg.Seq,
		Sender:    toParticipantView(msg.Sender),
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		IsSystem:  msg.IsSystem,
		IsFlagged: msg.IsFlagged,
		ClientRef: clientRef,
	}
}

func toParticipantView(p domain.PublicParticipant) ParticipantView {
	return ParticipantView{
		UserID:          string(p.UserID),
		DisplayIdentity: p.DisplayIdentity,
		Role:            string(p.Role),
	}
}

// NewRequest builds the frame of a client request.
func NewRequest(requestType string, room domain.RoomID, payload any) ([]byte, error) {
	envelope := Envelope{Type: requestType, RoomID: string(room)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		envelope.Payload = raw
	}
	return json.Marshal(envelope)
}

// DecodeEvent is the inverse of EncodeEvent, used by Go clients.
func DecodeEvent(data []byte) (event.DomainEvent, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Validation("malformed frame: %v", err)
	}
	room := domain.RoomID(envelope.RoomID)

	switch event.Type(envelope.Type) {
	case event.PeerListType:
		peers, err := decodeView[[]string](envelope.Payload)
		return event.PeerList{Room: room, Peers: lo.Map(peers, func(p string, _ int) domain.UserID {
			return domain.UserID(p)
		})}, err
	case event.UserJoinedType:
		view, err := decodeView[PresenceView](envelope.Payload)
		return event.UserJoined{Room: room, Participant: fromParticipantView(view.ParticipantView)}, err
	case event.UserLeftType:
		view, err := decodeView[PresenceView](envelope.Payload)
		return event.UserLeft{
			Room:        room,
			Participant: fromParticipantView(view.ParticipantView),
			Reason:      domain.LeaveReason(view.Reason),
		}, err
	case event.MessageType:
		view, err := decodeView[MessageView](envelope.Payload)
		return event.MessagePosted{Message: FromMessageView(view), ClientRef: view.ClientRef}, err
	case event.MessageDeletedType:
		view, err := decodeView[MessageDeletedView](envelope.Payload)
		return event.MessageDeleted{Room: room, MessageID: view.MessageID, DeletedBy: domain.UserID(view.DeletedBy)}, err
	case event.SignalType:
		view, err := decodeView[SignalView](envelope.Payload)
		return event.SignalRelayed{Room: room, From: domain.UserID(view.From), Signal: view.Signal}, err
	case event.TypingStartType:
		view, err := decodeView[TypingView](envelope.Payload)
		return event.TypingStarted{Room: room, User: domain.UserID(view.UserID)}, err
	case event.TypingStopType:
		view, err := decodeView[TypingView](envelope.Payload)
		return event.TypingStopped{Room: room, User: domain.UserID(view.UserID)}, err
	case event.ErrorType:
		view, err := decodeView[ErrorView](envelope.Payload)
		return event.Rejected{Room: room, RequestType: view.RequestType, Code: errors.Code(view.Code), Reason: view.Message}, err
	default:
		return nil, errors.Validation("unknown event type %q", envelope.Type)
	}
}

func decodeView[T any](raw json.RawMessage) (T, error) {
	var view T
	if err := json.Unmarshal(raw, &view); err != nil {
		return view, errors.Validation("malformed payload: %v", err)
	}
	return view, nil
}

func FromMessageView(view MessageView) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        view.ID,
		RoomID:    domain.RoomID(view.RoomID),
		Seq:       view.Seq,
		Sender:    fromParticipantView(view.Sender),
		Text:      view.Text,
		CreatedAt: view.CreatedAt,
		IsSystem:  view.IsSystem,
		IsFlagged: view.IsFlagged,
	}
}

func fromParticipantView(view ParticipantView) domain.PublicParticipant {
	return domain.PublicParticipant{
		UserID:          domain.UserID(view.UserID),
		DisplayIdentity: view.DisplayIdentity,
		Role:            domain.Role(view.Role),
	}
}
