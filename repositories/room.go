package repositories

import (
	"encoding/json"
	"fmt"
	"reading-room/domain"
	"reading-room/errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const roomPrefix = "room:"

type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// DiskRoom is the stored form of a room.
type DiskRoom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Create persists a room under "room:{id}". Room ids are unique.
func (r *RoomRepository) Create(room domain.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(DiskRoom{ID: string(room.ID), Name: room.Name, CreatedAt: room.CreatedAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		key := []byte(roomPrefix + string(room.ID))
		if _, err := txn.Get(key); err == nil {
			return errors.Validation("room %s already exists", room.ID)
		}
		return txn.Set(key, data)
	})
}

func (r *RoomRepository) Get(id domain.RoomID) (domain.Room, error) {
	var disk DiskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roomPrefix + string(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFound("room %s", id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(disk), nil
}

// List returns every known room ordered by id.
func (r *RoomRepository) List() ([]domain.Room, error) {
	var disks []DiskRoom
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk DiskRoom
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			disks = append(disks, disk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rooms := lo.Map(disks, func(d DiskRoom, _ int) domain.Room { return toRoom(d) })
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func toRoom(d DiskRoom) domain.Room {
	return domain.Room{ID: domain.RoomID(d.ID), Name: d.Name, CreatedAt: d.CreatedAt}
}
