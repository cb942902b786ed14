package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"reading-room/errors"
)

const maxRoomIDLength = 64

// Room is the display metadata of a reading room. It is owned by the room directory.
type Room struct {
	ID        RoomID
	Name      string
	CreatedAt time.Time
}

// RoomSummary is the live view of a room exposed by the directory endpoints.
type RoomSummary struct {
	ID      RoomID
	Name    string
	Members int
}

// ParseRoomID trims the raw id and rejects empty or oversized ones.
func ParseRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.Validation("room id is required")
	}
	if utf8.RuneCountInString(id) > maxRoomIDLength {
		return "", errors.Validation("room id exceeds %d characters", maxRoomIDLength)
	}
	return RoomID(id), nil
}
