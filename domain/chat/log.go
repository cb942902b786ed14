// Package chat holds the per-room chat sequence.
// The sequence is append-only: deletion turns an entry into a tombstone, it never removes it.
package chat

import (
	"reading-room/domain"
	"reading-room/errors"
)

type Kind int

const (
	KindUser Kind = iota
	KindSystem
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindSystem:
		return "system"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type Entry struct {
	Kind    Kind
	Message domain.ChatMessage
}

// Log is owned by a single room worker and is not safe for concurrent use.
type Log struct {
	capacity int
	nextSeq  uint64
	entries  []Entry
	index    map[string]uint64 // message id -> seq
}

// NewLog keeps at most capacity entries, the oldest are evicted first.
// A capacity <= 0 keeps everything.
func NewLog(capacity int) *Log {
	return &Log{
		capacity: capacity,
		nextSeq:  1,
		index:    make(map[string]uint64),
	}
}

// Append sequences the message and stores it. The returned copy carries the assigned Seq.
func (l *Log) Append(msg domain.ChatMessage) domain.ChatMessage {
	msg.Seq = l.nextSeq
	l.nextSeq++

	kind := KindUser
	if msg.IsSystem {
		kind = KindSystem
	}
	l.entries = append(l.entries, Entry{Kind: kind, Message: msg})
	l.index[msg.ID] = msg.Seq

	if l.capacity > 0 && len(l.entries) > l.capacity {
		delete(l.index, l.entries[0].Message.ID)
		// reslicing is O(1), append moves the live window to a new array once the old one is used up
		l.entries[0] = Entry{}
		l.entries = l.entries[1:]
	}
	return msg
}

func (l *Log) Get(messageID string) (Entry, bool) {
	pos, ok := l.position(messageID)
	if !ok {
		return Entry{}, false
	}
	return l.entries[pos], true
}

// Delete tombstones a user message. Moderators and admins may delete any user message,
// everybody else only their own.
func (l *Log) Delete(messageID string, requester domain.Participant) (Entry, error) {
	pos, ok := l.position(messageID)
	if !ok {
		return Entry{}, errors.NotFound("message %s", messageID)
	}

	entry := l.entries[pos]
	switch entry.Kind {
	case KindSystem:
		return Entry{}, errors.Validation("system message %s cannot be deleted", messageID)
	case KindDeleted:
		return Entry{}, errors.Validation("message %s is already deleted", messageID)
	}

	if !requester.Role.CanModerate() && entry.Message.Sender.UserID != requester.UserID {
		return Entry{}, errors.Forbidden("%s cannot delete message %s", requester.UserID, messageID)
	}

	entry.Kind = KindDeleted
	entry.Message.Text = ""
	l.entries[pos] = entry
	return entry, nil
}

// Entries returns a copy in sequence order.
func (l *Log) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int { return len(l.entries) }

// LastSeq is the sequence number of the most recent message, 0 when nothing was posted.
func (l *Log) LastSeq() uint64 { return l.nextSeq - 1 }

func (l *Log) position(messageID string) (int, bool) {
	seq, ok := l.index[messageID]
	if !ok || len(l.entries) == 0 {
		return 0, false
	}
	pos := int(seq - l.entries[0].Message.Seq)
	if pos < 0 || pos >= len(l.entries) {
		return 0, false
	}
	return pos, true
}
