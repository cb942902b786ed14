package websocket

import (
	"encoding/json"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
		check   func(req *require.Assertions, r Request)
	}{
		{
			name:  "Join with room in envelope",
			frame: `{"type":"joinRoom","roomId":"poetry"}`,
			check: func(req *require.Assertions, r Request) {
				req.Equal(JoinRoomType, r.Type)
				req.Equal(domain.RoomID("poetry"), r.Room)
			},
		},
		{
			name:  "Join with room in payload",
			frame: `{"type":"joinRoom","payload":{"roomId":"poetry"}}`,
			check: func(req *require.Assertions, r Request) {
				req.Equal(domain.RoomID("poetry"), r.Room)
			},
		},
		{
			name:  "Chat",
			frame: `{"type":"chat","roomId":"poetry","payload":{"text":"hello","clientRef":"local-1"}}`,
			check: func(req *require.Assertions, r Request) {
				req.Equal(ChatPayload{Text: "hello", ClientRef: "local-1"}, r.Payload)
			},
		},
		{
			name:  "Signal keeps the payload raw",
			frame: `{"type":"signal","roomId":"poetry","payload":{"targetId":"bob","signal":{"type":"offer","sdp":"v=0"}}}`,
			check: func(req *require.Assertions, r Request) {
				payload := r.Payload.(SignalPayload)
				req.Equal("bob", payload.TargetID)
				req.JSONEq(`{"type":"offer","sdp":"v=0"}`, string(payload.Signal))
			},
		},
		{name: "Not json", frame: `hello`, wantErr: true},
		{name: "Missing type", frame: `{"roomId":"poetry"}`, wantErr: true},
		{name: "Missing room", frame: `{"type":"typingStart"}`, wantErr: true},
		{name: "Unknown type", frame: `{"type":"dance","roomId":"poetry"}`, wantErr: true},
		{name: "Chat without text", frame: `{"type":"chat","roomId":"poetry","payload":{}}`, wantErr: true},
		{name: "Delete without id", frame: `{"type":"deleteMessage","roomId":"poetry","payload":{}}`, wantErr: true},
		{name: "Signal without target", frame: `{"type":"signal","roomId":"poetry","payload":{"signal":{}}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r, err := DecodeRequest([]byte(tt.frame))
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
				return
			}
			req.NoError(err)
			tt.check(req, r)
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	frame, err := EncodeEvent(event.MessagePosted{
		Message: domain.ChatMessage{
			ID: "01J", RoomID: "poetry", Seq: 3, Text: "hi", CreatedAt: at,
			Sender: domain.PublicParticipant{UserID: "alice", DisplayIdentity: "Alice", Role: domain.RoleListener},
		},
		ClientRef: "local-1",
	})
	req.NoError(err)
	req.JSONEq(`{
		"type":"message","roomId":"poetry",
		"payload":{"id":"01J","roomId":"poetry","seq":3,"text":"hi","createdAt":"2026-03-01T10:00:00Z",
			"isSystem":false,"isFlagged":false,"clientRef":"local-1",
			"sender":{"userId":"alice","displayIdentity":"Alice","role":"LISTENER"}}
	}`, string(frame))

	frame, err = EncodeEvent(event.PeerList{Room: "poetry", Peers: []domain.UserID{"bob", "carol"}})
	req.NoError(err)
	req.JSONEq(`{"type":"peerList","roomId":"poetry","payload":["bob","carol"]}`, string(frame))

	frame, err = EncodeEvent(event.NewRejected("poetry", DeleteMessageType, errors.Forbidden("not yours")))
	req.NoError(err)
	var envelope Envelope
	req.NoError(json.Unmarshal(frame, &envelope))
	req.Equal("error", envelope.Type)
	var view ErrorView
	req.NoError(json.Unmarshal(envelope.Payload, &view))
	req.Equal("forbidden", view.Code)
	req.Equal(DeleteMessageType, view.RequestType)
}

func TestDecodeEvent_InvertsEncodeEvent(t *testing.T) {
	alice := domain.PublicParticipant{UserID: "alice", DisplayIdentity: "Alice", Role: domain.RoleModerator}
	events := []event.DomainEvent{
		event.PeerList{Room: "poetry", Peers: []domain.UserID{"bob"}},
		event.UserJoined{Room: "poetry", Participant: alice},
		event.UserLeft{Room: "poetry", Participant: alice, Reason: domain.LeaveReplaced},
		event.MessageDeleted{Room: "poetry", MessageID: "01J", DeletedBy: "alice"},
		event.SignalRelayed{Room: "poetry", From: "alice", Signal: json.RawMessage(`{"type":"answer"}`)},
		event.TypingStarted{Room: "poetry", User: "alice"},
		event.TypingStopped{Room: "poetry", User: "alice"},
		event.Rejected{Room: "poetry", RequestType: ChatType, Code: errors.CodeValidation, Reason: "text is empty"},
	}
	for _, e := range events {
		t.Run(string(e.Type()), func(t *testing.T) {
			req := require.New(t)
			frame, err := EncodeEvent(e)
			req.NoError(err)
			decoded, err := DecodeEvent(frame)
			req.NoError(err)
			req.Equal(e, decoded)
		})
	}
}
