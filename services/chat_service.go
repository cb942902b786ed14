package services

import (
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
	"sort"
	"strings"
	"time"
)

// IChatService serves the read side of rooms: the directory and the archived history.
type IChatService interface {
	ListRooms() ([]domain.RoomSummary, error)
	CreateRoom(id, name string) (domain.Room, error)
	GetMessages(room string, cursor *string, limit int) ([]domain.ChatMessage, *string, error)
}

type ChatService struct {
	directory contract.IRoomDirectory
	archive   contract.IMessageArchive
	registry  contract.IRegistry
}

func NewChatService(directory contract.IRoomDirectory, archive contract.IMessageArchive, registry contract.IRegistry) *ChatService {
	return &ChatService{directory: directory, archive: archive, registry: registry}
}

// ListRooms merges the known rooms with live presence. Live rooms missing from the directory are listed too.
func (s *ChatService) ListRooms() ([]domain.RoomSummary, error) {
	rooms, err := s.directory.List()
	if err != nil {
		return nil, err
	}
	sizes := s.registry.RoomSizes()

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, domain.RoomSummary{ID: room.ID, Name: room.Name, Members: sizes[room.ID]})
		delete(sizes, room.ID)
	}
	for id, members := range sizes {
		summaries = append(summaries, domain.RoomSummary{ID: id, Name: string(id), Members: members})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (s *ChatService) CreateRoom(id, name string) (domain.Room, error) {
	roomID, err := domain.ParseRoomID(id)
	if err != nil {
		return domain.Room{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(roomID)
	}
	room := domain.Room{ID: roomID, Name: name, CreatedAt: time.Now().UTC()}
	if err := s.directory.Create(room); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *ChatService) GetMessages(room string, cursor *string, limit int) ([]domain.ChatMessage, *string, error) {
	roomID, err := domain.ParseRoomID(room)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.directory.Get(roomID); err != nil {
		if errors.Is(err, errors.ErrNotFound) && s.registry.MemberCount(roomID) > 0 {
			return s.archive.ListMessages(roomID, cursor, limit)
		}
		return nil, nil, err
	}
	return s.archive.ListMessages(roomID, cursor, limit)
}
