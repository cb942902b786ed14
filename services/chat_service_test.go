package services

import (
	"reading-room/domain"
	"reading-room/errors"
	"reading-room/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_ListRooms_MergesPresence(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIRoomDirectory(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	service := NewChatService(directory, mocks.NewMockIMessageArchive(ctrl), registry)

	directory.EXPECT().List().Return([]domain.Room{
		{ID: "poetry", Name: "Poetry"},
		{ID: "prose", Name: "Prose"},
	}, nil)
	registry.EXPECT().RoomSizes().Return(map[domain.RoomID]int{"poetry": 3, "drama": 1})

	summaries, err := service.ListRooms()
	req.NoError(err)
	req.Equal([]domain.RoomSummary{
		{ID: "drama", Name: "drama", Members: 1},
		{ID: "poetry", Name: "Poetry", Members: 3},
		{ID: "prose", Name: "Prose", Members: 0},
	}, summaries)
}

func TestChatService_CreateRoom(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIRoomDirectory(ctrl)
	service := NewChatService(directory, mocks.NewMockIMessageArchive(ctrl), mocks.NewMockIRegistry(ctrl))

	directory.EXPECT().Create(gomock.Any()).DoAndReturn(func(room domain.Room) error {
		req.Equal(domain.RoomID("poetry"), room.ID)
		req.Equal("poetry", room.Name)
		return nil
	})

	room, err := service.CreateRoom("  poetry ", "")
	req.NoError(err)
	req.False(room.CreatedAt.IsZero())

	_, err = service.CreateRoom("   ", "Nothing")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_GetMessages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIRoomDirectory(ctrl)
	archive := mocks.NewMockIMessageArchive(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	service := NewChatService(directory, archive, registry)

	cursor := "01J"
	directory.EXPECT().Get(domain.RoomID("poetry")).Return(domain.Room{ID: "poetry"}, nil)
	archive.EXPECT().ListMessages(domain.RoomID("poetry"), &cursor, 20).
		Return([]domain.ChatMessage{{ID: "01H"}}, nil, nil)

	messages, next, err := service.GetMessages("poetry", &cursor, 20)
	req.NoError(err)
	req.Len(messages, 1)
	req.Nil(next)

	// Unknown and empty rooms are not found
	directory.EXPECT().Get(domain.RoomID("drama")).Return(domain.Room{}, errors.NotFound("room drama"))
	registry.EXPECT().MemberCount(domain.RoomID("drama")).Return(0)
	_, _, err = service.GetMessages("drama", nil, 20)
	req.ErrorIs(err, errors.ErrNotFound)
}
