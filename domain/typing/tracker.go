// Package typing tracks who is composing a message in a room.
// Each user is either Idle (absent from the tracker) or Typing (present with a last-seen time).
package typing

import (
	"reading-room/domain"
	"sort"
	"time"
)

const DefaultTTL = 2 * time.Second

// Tracker is owned by a single room worker and is not safe for concurrent use.
type Tracker struct {
	ttl      time.Duration
	lastSeen map[domain.UserID]time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{ttl: ttl, lastSeen: make(map[domain.UserID]time.Time)}
}

// Start moves user to Typing and refreshes its last-seen time.
// It reports true only for the Idle -> Typing transition.
func (t *Tracker) Start(user domain.UserID, now time.Time) bool {
	_, typing := t.lastSeen[user]
	t.lastSeen[user] = now
	return !typing
}

// Stop moves user to Idle. It reports true only if the user was typing.
func (t *Tracker) Stop(user domain.UserID) bool {
	if _, typing := t.lastSeen[user]; !typing {
		return false
	}
	delete(t.lastSeen, user)
	return true
}

// Sweep moves every user not refreshed for ttl back to Idle and returns them, sorted.
func (t *Tracker) Sweep(now time.Time) []domain.UserID {
	var expired []domain.UserID
	for user, seen := range t.lastSeen {
		if !now.Before(seen.Add(t.ttl)) {
			expired = append(expired, user)
			delete(t.lastSeen, user)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	return expired
}

func (t *Tracker) IsTyping(user domain.UserID) bool {
	_, typing := t.lastSeen[user]
	return typing
}

func (t *Tracker) Len() int { return len(t.lastSeen) }
