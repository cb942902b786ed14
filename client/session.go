package client

import (
	"context"
	"log/slog"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"reading-room/projection"

	"github.com/oklog/ulid/v2"
)

// Session is one participant in one room: it joins, keeps the mesh and the timeline
// in line with server events and forwards them to the extra sinks.
type Session struct {
	conn     *Conn
	self     domain.PublicParticipant
	room     domain.RoomID
	mesh     *Mesh
	timeline *projection.Timeline
	sinks    []contract.EventSink
	log      *slog.Logger
}

func NewSession(conn *Conn, self domain.PublicParticipant, room domain.RoomID, factory PeerFactory, log *slog.Logger, sinks ...contract.EventSink) *Session {
	return &Session{
		conn:     conn,
		self:     self,
		room:     room,
		mesh:     NewMesh(self.UserID, room, factory, conn, log),
		timeline: projection.NewTimeline(self.UserID),
		sinks:    sinks,
		log:      log,
	}
}

// Run joins the room and dispatches events until ctx ends or the connection drops.
func (s *Session) Run(ctx context.Context) error {
	defer s.mesh.Close()
	if err := s.conn.JoinRoom(s.room); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			_ = s.conn.LeaveRoom(s.room)
			return nil
		case e, ok := <-s.conn.Events():
			if !ok {
				return errors.ErrConnectionClosed
			}
			s.dispatch(ctx, e)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, e event.DomainEvent) {
	consumers := append([]contract.EventSink{s.timeline, s.mesh}, s.sinks...)
	for _, consumer := range consumers {
		if err := consumer.Consume(ctx, e); err != nil {
			s.log.Warn("Event consumer failed", "type", e.Type(), "error", err)
		}
	}
}

// Post shows the message locally and sends it. The server echo replaces the local entry.
func (s *Session) Post(text string) error {
	clientRef := ulid.Make().String()
	s.timeline.AddLocal(clientRef, s.self, text)
	return s.conn.Chat(s.room, text, clientRef)
}

func (s *Session) Delete(messageID string) error {
	return s.conn.DeleteMessage(s.room, messageID)
}

func (s *Session) Typing(typing bool) error {
	return s.conn.Typing(s.room, typing)
}

func (s *Session) Timeline() []projection.Entry {
	return s.timeline.Messages()
}

func (s *Session) Peers() []domain.UserID {
	return s.mesh.Peers()
}
