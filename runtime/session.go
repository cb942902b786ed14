package runtime

import (
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
	"sync"
)

// session is the per-connection state kept by the orchestrator between connect and disconnect.
// rooms holds every room a join was dispatched for, so a disconnect can leave all of them,
// including joins still waiting in a room queue.
type session struct {
	mu       sync.Mutex
	id       domain.ConnectionID
	identity domain.PublicParticipant
	sink     contract.EventSink
	closed   bool
	rooms    map[domain.RoomID]struct{}
}

func newSession(id domain.ConnectionID, identity domain.PublicParticipant, sink contract.EventSink) *session {
	return &session{id: id, identity: identity, sink: sink, rooms: make(map[domain.RoomID]struct{})}
}

// track records a room before its join is dispatched. It reports whether the room was new.
func (s *session) track(room domain.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.ErrConnectionClosed
	}
	if _, ok := s.rooms[room]; ok {
		return false, nil
	}
	s.rooms[room] = struct{}{}
	return true, nil
}

func (s *session) untrack(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	return true
}

func (s *session) has(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[room]
	return ok && !s.closed
}

// close marks the session closed and hands back the rooms to leave.
func (s *session) close() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	rooms := make([]domain.RoomID, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.rooms = make(map[domain.RoomID]struct{})
	return rooms
}

