package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reading-room/domain"
	"reading-room/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const DefaultPageSize = 50

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages int) MessageRepository {
	if limitMessages <= 0 {
		limitMessages = DefaultPageSize
	}
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the stored form of a chat message.
type DiskMessage struct {
	ID          string    `json:"id"`
	Room        string    `json:"room"`
	Seq         uint64    `json:"seq"`
	AuthorID    string    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	AuthorRole  string    `json:"author_role"`
	Content     string    `json:"content"`
	At          time.Time `json:"at"`
	IsFlagged   bool      `json:"is_flagged"`
	IsDeleted   bool      `json:"is_deleted"`
	DeletedBy   string    `json:"deleted_by,omitempty"`
	DeletedAtMs int64     `json:"deleted_at_ms,omitempty"`
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{ulid}": ULIDs sort lexicographically by creation time,
// so a prefix scan returns the room history in order.
func (m MessageRepository) StoreMessage(msg domain.ChatMessage) error {
	bytes, err := json.Marshal(fromChatMessage(msg))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.RoomID, msg.ID), bytes)
	})
}

// MarkDeleted turns the stored message into a tombstone, its content is dropped.
func (m MessageRepository) MarkDeleted(room domain.RoomID, messageID string, deletedBy domain.UserID) error {
	key := messageKey(room, messageID)
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFound("archived message %s", messageID)
		}
		if err != nil {
			return err
		}
		var disk DiskMessage
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &disk)
		}); err != nil {
			return err
		}
		disk.IsDeleted = true
		disk.Content = ""
		disk.DeletedBy = string(deletedBy)
		disk.DeletedAtMs = time.Now().UnixMilli()

		bytes, err := json.Marshal(disk)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// ListMessages walks a room history from the newest message backwards.
// The returned cursor is the id of the last message read; pass it back to get older ones.
// A nil cursor means there is nothing older.
func (m MessageRepository) ListMessages(room domain.RoomID, cursor *string, limit int) ([]domain.ChatMessage, *string, error) {
	if limit <= 0 || limit > m.limitMessages {
		limit = m.limitMessages
	}
	var diskMessages []DiskMessage
	var lastKey string
	hasMore := false

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", room))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// 0xFF sorts after every ULID character, so we start past the newest message
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(diskMessages) == limit {
				hasMore = true
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			var disk DiskMessage
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &disk)
			}); err != nil {
				return err
			}
			diskMessages = append(diskMessages, disk)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := lo.Map(diskMessages, func(d DiskMessage, _ int) domain.ChatMessage {
		return toChatMessage(d)
	})
	if !hasMore {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func messageKey(room domain.RoomID, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%s", room, id))
}

func fromChatMessage(msg domain.ChatMessage) DiskMessage {
	return DiskMessage{
		ID:         msg.ID,
		Room:       string(msg.RoomID),
		Seq:        msg.Seq,
		AuthorID:   string(msg.Sender.UserID),
		AuthorName: msg.Sender.DisplayIdentity,
		AuthorRole: string(msg.Sender.Role),
		Content:    msg.Text,
		At:         msg.CreatedAt.UTC(),
		IsFlagged:  msg.IsFlagged,
	}
}

func toChatMessage(d DiskMessage) domain.ChatMessage {
	return domain.ChatMessage{
		ID:     d.ID,
		RoomID: domain.RoomID(d.Room),
		Seq:    d.Seq,
		Sender: domain.PublicParticipant{
			UserID:          domain.UserID(d.AuthorID),
			DisplayIdentity: d.AuthorName,
			Role:            domain.Role(d.AuthorRole),
		},
		Text:      d.Content,
		CreatedAt: d.At,
		IsFlagged: d.IsFlagged,
	}
}
