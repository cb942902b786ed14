// Package signaling validates and routes peer connection negotiation payloads.
// Payloads are opaque: only their shape and size are checked, never their content.
package signaling

import (
	"bytes"
	"encoding/json"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
)

const DefaultMaxPayloadBytes = 64 * 1024

// Presence is the read view of a room the relay needs to route a payload.
type Presence interface {
	Participant(connection domain.ConnectionID) (domain.Participant, bool)
	Member(user domain.UserID) (domain.Participant, bool)
}

// RoomPresence binds the registry to one room.
type RoomPresence struct {
	registry contract.IRegistry
	room     domain.RoomID
}

func NewRoomPresence(registry contract.IRegistry, room domain.RoomID) RoomPresence {
	return RoomPresence{registry: registry, room: room}
}

func (p RoomPresence) Participant(connection domain.ConnectionID) (domain.Participant, bool) {
	return p.registry.Participant(p.room, connection)
}

func (p RoomPresence) Member(user domain.UserID) (domain.Participant, bool) {
	return p.registry.Member(p.room, user)
}

// Route is a validated delivery: From is the sender identity seen by the target.
type Route struct {
	From   domain.UserID
	Target domain.Participant
}

type Relay struct {
	maxPayloadBytes int
}

func NewRelay(maxPayloadBytes int) Relay {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return Relay{maxPayloadBytes: maxPayloadBytes}
}

// Validate rejects payloads that are empty, oversized or not a JSON object.
func (r Relay) Validate(payload json.RawMessage) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return errors.Validation("signal payload is empty")
	}
	if len(trimmed) > r.maxPayloadBytes {
		return errors.Validation("signal payload exceeds %d bytes", r.maxPayloadBytes)
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return errors.Validation("signal payload must be a JSON object")
	}
	return nil
}

// Resolve checks, at forward time, that both ends are present in the room.
// A missing sender or target returns ErrNotFound, which callers drop silently.
func (r Relay) Resolve(presence Presence, from domain.ConnectionID, target domain.UserID) (Route, error) {
	sender, ok := presence.Participant(from)
	if !ok {
		return Route{}, errors.NotFound("sender %s is not in the room", from)
	}
	target = domain.NormalizeIdentity(string(target))
	if target == sender.UserID {
		return Route{}, errors.NotFound("signal target is the sender")
	}
	recipient, ok := presence.Member(target)
	if !ok {
		return Route{}, errors.NotFound("target %s is not in the room", target)
	}
	return Route{From: sender.UserID, Target: recipient}, nil
}
