package websocket

import (
	"context"
	"log/slog"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer, enough for SDP offers.
	maxMessageSize = 128 * 1024

	DefaultBufferSize = 256
)

// Connection is one websocket client. It is the event sink of its connection:
// events are queued in order and written by WritePump, a full queue is reported instead of waited on.
type Connection struct {
	conn      *gorilla.Conn
	log       *slog.Logger
	send      chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
	id domain.ConnectionID
}

func NewConnection(conn *gorilla.Conn, bufferSize int, log *slog.Logger) *Connection {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Connection{
		conn: conn,
		log:  log,
		send: make(chan event.DomainEvent, bufferSize),
		done: make(chan struct{}),
	}
}

func (c *Connection) setID(id domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

func (c *Connection) ID() domain.ConnectionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *Connection) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- e:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Close stops the write pump, which closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// ReadPump reads frames until the socket fails. There is at most one reader per connection.
func (c *Connection) ReadPump(handle func(data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseGoingAway, gorilla.CloseNormalClosure) {
				c.log.Debug("Websocket closed unexpectedly", "connection_id", string(c.ID()), "error", err)
			}
			return
		}
		handle(data)
	}
}

// WritePump writes queued events and pings. There is at most one writer per connection.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e := <-c.send:
			frame, err := EncodeEvent(e)
			if err != nil {
				c.log.Error("Unable to encode event", "type", e.Type(), "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gorilla.TextMessage, frame); err != nil {
				c.log.Debug("Unable to write frame", "connection_id", string(c.ID()), "error", err)
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
