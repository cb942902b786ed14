// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and reconciliation of local echoes.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"reading-room/domain"
	"reading-room/domain/event"
	"sort"
	"sync"
	"time"
)

// Entry is one line of the local timeline. Pending entries are local echoes not yet sequenced by the server.
type Entry struct {
	ID        string
	ClientRef string
	Seq       uint64
	Sender    domain.PublicParticipant
	Text      string
	CreatedAt time.Time
	IsSystem  bool
	IsFlagged bool
	Pending   bool
}

// Timeline holds the local view of one room chat
type Timeline struct {
	mu        sync.RWMutex
	Owner     domain.UserID
	confirmed []Entry
	pending   []Entry
	seen      map[string]struct{}
}

func NewTimeline(owner domain.UserID) *Timeline {
	return &Timeline{Owner: owner, seen: make(map[string]struct{})}
}

// AddLocal shows a message right away, before the server assigns its place.
func (t *Timeline) AddLocal(clientRef string, sender domain.PublicParticipant, text string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := Entry{ClientRef: clientRef, Sender: sender, Text: text, CreatedAt: time.Now().UTC(), Pending: true}
	t.pending = append(t.pending, entry)
	return entry
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePosted:
		t.apply(evt.Message, evt.ClientRef)
	case event.MessageDeleted:
		t.remove(evt.MessageID)
	}
	return nil
}

func (t *Timeline) apply(msg domain.ChatMessage, clientRef string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if clientRef != "" {
		for i, p := range t.pending {
			if p.ClientRef == clientRef {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
				break
			}
		}
	}
	if _, ok := t.seen[msg.ID]; ok {
		return
	}
	t.seen[msg.ID] = struct{}{}

	entry := fromMessage(msg, clientRef)
	// Messages usually arrive in order, so the search lands at the end
	i := sort.Search(len(t.confirmed), func(i int) bool { return t.confirmed[i].Seq > entry.Seq })
	t.confirmed = append(t.confirmed, Entry{})
	copy(t.confirmed[i+1:], t.confirmed[i:])
	t.confirmed[i] = entry
}

func (t *Timeline) remove(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.confirmed {
		if e.ID == messageID {
			t.confirmed = append(t.confirmed[:i], t.confirmed[i+1:]...)
			return
		}
	}
}

// Messages returns confirmed entries by sequence number, followed by pending echoes.
func (t *Timeline) Messages() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]Entry, 0, len(t.confirmed)+len(t.pending))
	res = append(res, t.confirmed...)
	return append(res, t.pending...)
}

func fromMessage(msg domain.ChatMessage, clientRef string) Entry {
	return Entry{
		ID:        msg.ID,
		ClientRef: clientRef,
		Seq:       msg.Seq,
		Sender:    msg.Sender,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		IsSystem:  msg.IsSystem,
		IsFlagged: msg.IsFlagged,
	}
}
