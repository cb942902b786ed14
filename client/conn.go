// Package client is the Go side of a reading room participant: the signaling connection,
// the peer mesh and the local chat timeline.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"reading-room/infrastructure/websocket"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 128 * 1024
)

// Conn is one connection to the server. Each participant builds its own, there is no shared instance.
type Conn struct {
	conn      *gorilla.Conn
	log       *slog.Logger
	incoming  chan event.DomainEvent
	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the websocket. The token travels in the Authorization header.
func Dial(ctx context.Context, serverURL, token string, log *slog.Logger) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := gorilla.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: server refused the token", errors.ErrAuth)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conn{
		conn:     ws,
		log:      log,
		incoming: make(chan event.DomainEvent, 64),
		outgoing: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// Events is closed when the connection is lost.
func (c *Conn) Events() <-chan event.DomainEvent {
	return c.incoming
}

func (c *Conn) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.incoming)
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// The server pings us, any frame proves it is alive
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		e, err := websocket.DecodeEvent(data)
		if err != nil {
			c.log.Warn("Ignoring frame", "error", err)
			continue
		}
		select {
		case c.incoming <- e:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) send(requestType string, room domain.RoomID, payload any) error {
	frame, err := websocket.NewRequest(requestType, room, payload)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	}
}

func (c *Conn) JoinRoom(room domain.RoomID) error {
	return c.send(websocket.JoinRoomType, room, nil)
}

func (c *Conn) LeaveRoom(room domain.RoomID) error {
	return c.send(websocket.LeaveRoomType, room, nil)
}

func (c *Conn) Chat(room domain.RoomID, text, clientRef string) error {
	return c.send(websocket.ChatType, room, websocket.ChatPayload{Text: text, ClientRef: clientRef})
}

func (c *Conn) DeleteMessage(room domain.RoomID, messageID string) error {
	return c.send(websocket.DeleteMessageType, room, websocket.DeleteMessagePayload{MessageID: messageID})
}

func (c *Conn) Signal(room domain.RoomID, target domain.UserID, payload []byte) error {
	return c.send(websocket.SignalType, room, websocket.SignalPayload{TargetID: string(target), Signal: payload})
}

func (c *Conn) Typing(room domain.RoomID, typing bool) error {
	if typing {
		return c.send(websocket.TypingStartType, room, nil)
	}
	return c.send(websocket.TypingStopType, room, nil)
}

// Close is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
