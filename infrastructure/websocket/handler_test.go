package websocket_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reading-room/auth"
	"reading-room/domain"
	"reading-room/infrastructure/websocket"
	"reading-room/runtime"
	"reading-room/runtime/workers"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const secret = "handler-test-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), runtime.NewRegistry(), nil, nil, runtime.Config{})
	require.NoError(t, orchestrator.Start(context.Background()))
	t.Cleanup(orchestrator.Stop)

	handler := websocket.NewHandler(orchestrator, log, websocket.HandlerConfig{})
	server := httptest.NewServer(auth.Middleware(auth.NewTokenValidator(secret, ""))(handler))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, user string, role domain.Role) *gorilla.Conn {
	t.Helper()
	token, err := auth.NewTokenValidator(secret, "").GenerateToken(user, user, role, time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=" + token
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorilla.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(frame)))
}

// next reads frames until one of the wanted type shows up.
func next(t *testing.T, conn *gorilla.Conn, want string) websocket.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		var envelope websocket.Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		if envelope.Type == want {
			return envelope
		}
	}
}

func nextMessage(t *testing.T, conn *gorilla.Conn, match func(websocket.MessageView) bool) websocket.MessageView {
	t.Helper()
	for {
		var msg websocket.MessageView
		require.NoError(t, json.Unmarshal(next(t, conn, "message").Payload, &msg))
		if match(msg) {
			return msg
		}
	}
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	req := require.New(t)
	server := newServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)

	req.ErrorIs(err, gorilla.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RoomConversation(t *testing.T) {
	req := require.New(t)
	server := newServer(t)

	// Given alice in the room
	alice := dial(t, server, "alice", domain.RoleListener)
	send(t, alice, `{"type":"joinRoom","roomId":"poetry"}`)
	var peers []string
	req.NoError(json.Unmarshal(next(t, alice, "peerList").Payload, &peers))
	req.Empty(peers)

	// When bob joins
	bob := dial(t, server, "Bob", domain.RoleListener)
	send(t, bob, `{"type":"joinRoom","roomId":"poetry"}`)

	// Then bob learns about alice and alice about bob
	req.NoError(json.Unmarshal(next(t, bob, "peerList").Payload, &peers))
	req.Equal([]string{"alice"}, peers)
	var joined websocket.PresenceView
	req.NoError(json.Unmarshal(next(t, alice, "userJoined").Payload, &joined))
	req.Equal("bob", joined.UserID)

	// When bob posts, only bob gets its clientRef back
	send(t, bob, `{"type":"chat","roomId":"poetry","payload":{"text":"  hello  ","clientRef":"local-1"}}`)
	msg := nextMessage(t, bob, func(m websocket.MessageView) bool { return !m.IsSystem })
	req.Equal("hello", msg.Text)
	req.Equal("local-1", msg.ClientRef)

	seen := nextMessage(t, alice, func(m websocket.MessageView) bool { return m.ID == msg.ID })
	req.Empty(seen.ClientRef)

	// When alice, a listener, tries to delete it
	send(t, alice, `{"type":"deleteMessage","roomId":"poetry","payload":{"messageId":"`+msg.ID+`"}}`)
	var rejection websocket.ErrorView
	req.NoError(json.Unmarshal(next(t, alice, "error").Payload, &rejection))
	req.Equal("forbidden", rejection.Code)
	req.Equal("deleteMessage", rejection.RequestType)

	// When alice signals bob
	send(t, alice, `{"type":"signal","roomId":"poetry","payload":{"targetId":"BOB","signal":{"type":"offer"}}}`)
	var signal websocket.SignalView
	req.NoError(json.Unmarshal(next(t, bob, "signal").Payload, &signal))
	req.Equal("alice", signal.From)
	req.JSONEq(`{"type":"offer"}`, string(signal.Signal))

	// When bob goes away, alice sees him leave
	_ = bob.Close()
	var left websocket.PresenceView
	req.NoError(json.Unmarshal(next(t, alice, "userLeft").Payload, &left))
	req.Equal("bob", left.UserID)
}

func TestHandler_MalformedFrame_RepliesError(t *testing.T) {
	req := require.New(t)
	server := newServer(t)
	alice := dial(t, server, "alice", domain.RoleListener)

	send(t, alice, `not json`)

	var rejection websocket.ErrorView
	req.NoError(json.Unmarshal(next(t, alice, "error").Payload, &rejection))
	req.Equal("validation", rejection.Code)
}
