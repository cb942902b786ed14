//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reading-room/domain"
	"reading-room/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Workers that carry an identity (one per room) expose it through Name.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if named, ok := w.(interface{ Name() string }); ok {
		return named.Name()
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink must not block: a sink that cannot accept an event returns an error.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Recipient is a room member together with the sink of its connection.
type Recipient struct {
	Participant domain.Participant
	Sink        EventSink
}

// IRegistry is the presence registry. Room membership is only mutated by room workers.
type IRegistry interface {
	RegisterConnection(connection domain.ConnectionID, sink EventSink)
	UnregisterConnection(connection domain.ConnectionID) bool
	Join(room domain.RoomID, participant domain.Participant) (replaced domain.Participant, hadPrevious bool, err error)
	Leave(room domain.RoomID, connection domain.ConnectionID) (domain.Participant, bool)
	Participant(room domain.RoomID, connection domain.ConnectionID) (domain.Participant, bool)
	Member(room domain.RoomID, user domain.UserID) (domain.Participant, bool)
	Members(room domain.RoomID) []domain.Participant
	Recipients(room domain.RoomID) []Recipient
	SinkFor(connection domain.ConnectionID) (EventSink, bool)
	MemberCount(room domain.RoomID) int
	RoomSizes() map[domain.RoomID]int
	ConnectionCount() int
}

// IMessageArchive is the durable copy of chat messages, written asynchronously.
type IMessageArchive interface {
	StoreMessage(msg domain.ChatMessage) error
	MarkDeleted(room domain.RoomID, messageID string, deletedBy domain.UserID) error
	ListMessages(room domain.RoomID, cursor *string, limit int) ([]domain.ChatMessage, *string, error)
}

// IRoomDirectory owns room metadata.
type IRoomDirectory interface {
	Create(room domain.Room) error
	Get(id domain.RoomID) (domain.Room, error)
	List() ([]domain.Room, error)
}

// ITokenValidator turns the handshake token into the identity inherited by every event of the connection.
type ITokenValidator interface {
	Validate(token string) (domain.PublicParticipant, error)
}

// IRoomService is what the transport layer needs from the lifecycle manager.
type IRoomService interface {
	Connect(identity domain.PublicParticipant, sink EventSink) (domain.ConnectionID, error)
	Join(ctx context.Context, connection domain.ConnectionID, room domain.RoomID) (domain.JoinResult, error)
	Leave(ctx context.Context, connection domain.ConnectionID, room domain.RoomID) error
	Disconnect(connection domain.ConnectionID)
	Post(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, text, clientRef string) (domain.ChatMessage, error)
	Delete(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, messageID string) error
	Signal(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, target domain.UserID, payload []byte) error
	Typing(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, typing bool) error
}
