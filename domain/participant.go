// Package domain contains core concepts of the reading room coordination layer.
// This file defines Participant identities, roles and the initiator rule.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"reading-room/errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type RoomID string

type ConnectionID string

// UserID is always held in its normalized form, see NormalizeIdentity.
type UserID string

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleListener  Role = "LISTENER"
)

// ParseRole accepts any casing. An empty role defaults to LISTENER.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", RoleListener:
		return RoleListener, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", errors.ErrInvalidRole
	}
}

// CanModerate reports whether the role may delete messages of other participants.
func (r Role) CanModerate() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Participant is one connection present in one room.
type Participant struct {
	ConnectionID    ConnectionID
	UserID          UserID
	DisplayIdentity string
	Role            Role
	JoinedAt        time.Time
}

// PublicParticipant is the only participant view that leaves the server.
type PublicParticipant struct {
	UserID          UserID
	DisplayIdentity string
	Role            Role
}

func (p Participant) Public() PublicParticipant {
	return PublicParticipant{
		UserID:          p.UserID,
		DisplayIdentity: p.DisplayIdentity,
		Role:            p.Role,
	}
}

// NormalizeIdentity turns a raw user id into the form used for registry keys and
// initiator comparison: trimmed, NFC composed and case folded.
func NormalizeIdentity(raw string) UserID {
	composed := norm.NFC.String(strings.TrimSpace(raw))
	// A Caser keeps state, so one is built per call.
	folded := cases.Fold().String(composed)
	return UserID(norm.NFC.String(folded))
}

// Initiator returns the participant that sends the offer for the pair (a, b).
// The result does not depend on argument order.
func Initiator(a, b UserID) UserID {
	if a < b {
		return a
	}
	return b
}

// IsInitiator tells the local side whether it must create the offer towards remote.
func IsInitiator(self, remote UserID) bool {
	return self != remote && Initiator(self, remote) == self
}
