package runtime

import (
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
	"sort"
	"sync"
)

// roomMembers indexes the participants of one room by user and by connection.
type roomMembers struct {
	byUser       map[domain.UserID]domain.Participant
	byConnection map[domain.ConnectionID]domain.UserID
}

func newRoomMembers() *roomMembers {
	return &roomMembers{
		byUser:       make(map[domain.UserID]domain.Participant),
		byConnection: make(map[domain.ConnectionID]domain.UserID),
	}
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]contract.EventSink // map connection -> Sink
	rooms    map[domain.RoomID]*roomMembers            // map room to users
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnectionID]contract.EventSink),
		rooms:    make(map[domain.RoomID]*roomMembers),
	}
}

// RegisterConnection makes a connection eligible to join rooms.
func (r *Registry) RegisterConnection(connection domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connection] = sink
}

// UnregisterConnection drops the sink of a connection. Room memberships are left to the
// room workers, which remove them when processing the matching leave.
func (r *Registry) UnregisterConnection(connection domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[connection]; !ok {
		return false
	}
	delete(r.sessions, connection)
	return true
}

// Join adds the participant to the room. A userId has at most one connection per room:
// an existing entry for the same user is replaced and returned.
// Joining from an unregistered connection fails, so a dropped socket can never reappear.
func (r *Registry) Join(roomID domain.RoomID, p domain.Participant) (domain.Participant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[p.ConnectionID]; !ok {
		return domain.Participant{}, false, errors.ErrConnectionClosed
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = newRoomMembers()
		r.rooms[roomID] = members
	}

	previous, hadPrevious := members.byUser[p.UserID]
	if hadPrevious {
		delete(members.byConnection, previous.ConnectionID)
	}
	// The same connection may come back under another identity only through a new handshake
	if user, ok := members.byConnection[p.ConnectionID]; ok && user != p.UserID {
		delete(members.byUser, user)
	}

	members.byUser[p.UserID] = p
	members.byConnection[p.ConnectionID] = p.UserID
	return previous, hadPrevious, nil
}

// Leave removes the participant bound to the connection. Absent participants are not an error.
func (r *Registry) Leave(roomID domain.RoomID, connection domain.ConnectionID) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	user, ok := members.byConnection[connection]
	if !ok {
		return domain.Participant{}, false
	}
	p := members.byUser[user]
	delete(members.byConnection, connection)
	delete(members.byUser, user)

	// If no one is left in the room, remove the room entry entirely
	if len(members.byUser) == 0 {
		delete(r.rooms, roomID)
	}
	return p, true
}

func (r *Registry) Participant(roomID domain.RoomID, connection domain.ConnectionID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	user, ok := members.byConnection[connection]
	if !ok {
		return domain.Participant{}, false
	}
	return members.byUser[user], true
}

func (r *Registry) Member(roomID domain.RoomID, user domain.UserID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := members.byUser[user]
	return p, ok
}

// Members returns the participants of a room in join order.
func (r *Registry) Members(roomID domain.RoomID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(roomID)
}

// Recipients resolves the members of a room into their sinks, in join order.
// Members whose connection is already unregistered are skipped.
func (r *Registry) Recipients(roomID domain.RoomID) []contract.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var recipients []contract.Recipient
	for _, p := range r.membersLocked(roomID) {
		if sink, exists := r.sessions[p.ConnectionID]; exists {
			recipients = append(recipients, contract.Recipient{Participant: p, Sink: sink})
		}
	}
	return recipients
}

func (r *Registry) SinkFor(connection domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[connection]
	return sink, ok
}

func (r *Registry) MemberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if members, ok := r.rooms[roomID]; ok {
		return len(members.byUser)
	}
	return 0
}

// RoomSizes returns the number of members of every non-empty room.
func (r *Registry) RoomSizes() map[domain.RoomID]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sizes := make(map[domain.RoomID]int, len(r.rooms))
	for id, members := range r.rooms {
		sizes[id] = len(members.byUser)
	}
	return sizes
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) membersLocked(roomID domain.RoomID) []domain.Participant {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	list := make([]domain.Participant, 0, len(members.byUser))
	for _, p := range members.byUser {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].UserID < list[j].UserID
	})
	return list
}
