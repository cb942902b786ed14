package runtime_test

import (
	"context"
	"log/slog"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"reading-room/mocks"
	"reading-room/moderation"
	"reading-room/runtime"
	"reading-room/runtime/workers"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type RecordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	err    error
}

func (s *RecordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *RecordingSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *RecordingSink) OfType(t event.Type) []event.DomainEvent {
	var res []event.DomainEvent
	for _, e := range s.Events() {
		if e.Type() == t {
			res = append(res, e)
		}
	}
	return res
}

func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fixture struct {
	orchestrator *runtime.Orchestrator
	registry     *runtime.Registry
}

func newFixture(t *testing.T, cfg runtime.Config) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), registry, nil, nil, cfg)
	require.NoError(t, orchestrator.Start(context.Background()))
	t.Cleanup(orchestrator.Stop)
	return fixture{orchestrator: orchestrator, registry: registry}
}

func (f fixture) connect(t *testing.T, user string, role domain.Role) (domain.ConnectionID, *RecordingSink) {
	t.Helper()
	sink := &RecordingSink{}
	id, err := f.orchestrator.Connect(domain.PublicParticipant{
		UserID:          domain.NormalizeIdentity(user),
		DisplayIdentity: user + "@example.com",
		Role:            role,
	}, sink)
	require.NoError(t, err)
	return id, sink
}

func (f fixture) join(t *testing.T, connection domain.ConnectionID, room domain.RoomID) domain.JoinResult {
	t.Helper()
	res, err := f.orchestrator.Join(context.Background(), connection, room)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	return res
}

const archives = domain.RoomID("archives")

func TestOrchestrator_JoinThenLeave_BroadcastsOnceEach(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	ctx := context.Background()
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	alice, aliceSink := f.connect(t, "alice", domain.RoleListener)

	// Given bob is in the room
	f.join(t, bob, archives)
	bobSink.Reset()

	// When alice joins
	res := f.join(t, alice, archives)

	// Then she gets the current peers, without herself
	req.Len(res.Members, 2)
	peerLists := aliceSink.OfType(event.PeerListType)
	req.Len(peerLists, 1)
	req.Equal([]domain.UserID{"bob"}, peerLists[0].(event.PeerList).Peers)
	req.Empty(aliceSink.OfType(event.UserJoinedType))

	// And bob sees her join once, followed by the system message
	events := bobSink.Events()
	req.Len(events, 2)
	joined, ok := events[0].(event.UserJoined)
	req.True(ok)
	req.Equal(domain.UserID("alice"), joined.Participant.UserID)
	req.Equal("alice@example.com", joined.Participant.DisplayIdentity)
	notice := events[1].(event.MessagePosted)
	req.True(notice.Message.IsSystem)

	// When alice leaves
	req.NoError(f.orchestrator.Leave(ctx, alice, archives))

	// Then she is gone and bob saw exactly one join and one leave
	_, present := f.registry.Member(archives, "alice")
	req.False(present)
	req.Len(bobSink.OfType(event.UserJoinedType), 1)
	left := bobSink.OfType(event.UserLeftType)
	req.Len(left, 1)
	req.Equal(domain.LeaveExplicit, left[0].(event.UserLeft).Reason)

	// And leaving again is a no-op
	req.NoError(f.orchestrator.Leave(ctx, alice, archives))
	req.Len(bobSink.OfType(event.UserLeftType), 1)
}

func TestOrchestrator_Reconnect_ReplacesPreviousConnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	first, _ := f.connect(t, "alice", domain.RoleListener)
	second, _ := f.connect(t, "Alice", domain.RoleListener)
	f.join(t, bob, archives)
	f.join(t, first, archives)
	bobSink.Reset()

	// When alice joins again from another connection
	f.join(t, second, archives)

	// Then only one entry exists for her
	req.Equal(2, f.registry.MemberCount(archives))
	p, ok := f.registry.Member(archives, "alice")
	req.True(ok)
	req.Equal(second, p.ConnectionID)

	// And bob sees a synthetic leave of the old connection before the new join
	events := bobSink.Events()
	req.GreaterOrEqual(len(events), 2)
	left, ok := events[0].(event.UserLeft)
	req.True(ok)
	req.Equal(domain.LeaveReplaced, left.Reason)
	_, ok = events[1].(event.UserJoined)
	req.True(ok)

	// And a late disconnect of the old connection changes nothing
	f.orchestrator.Disconnect(first)
	time.Sleep(50 * time.Millisecond)
	req.Equal(2, f.registry.MemberCount(archives))
}

func TestOrchestrator_Post_PreservesOrderAndEchoesClientRef(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	ctx := context.Background()
	alice, aliceSink := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)
	aliceSink.Reset()
	bobSink.Reset()

	// When alice sends two messages
	hi, err := f.orchestrator.Post(ctx, alice, archives, "hi", "local-1")
	req.NoError(err)
	there, err := f.orchestrator.Post(ctx, alice, archives, "  there  ", "local-2")
	req.NoError(err)

	// Then every recipient sees them in order
	req.Less(hi.Seq, there.Seq)
	req.Equal("there", there.Text)
	for _, sink := range []*RecordingSink{aliceSink, bobSink} {
		messages := sink.OfType(event.MessageType)
		req.Len(messages, 2)
		req.Equal("hi", messages[0].(event.MessagePosted).Message.Text)
		req.Equal("there", messages[1].(event.MessagePosted).Message.Text)
	}

	// And only the sender gets its clientRef back
	req.Equal("local-1", aliceSink.OfType(event.MessageType)[0].(event.MessagePosted).ClientRef)
	req.Empty(bobSink.OfType(event.MessageType)[0].(event.MessagePosted).ClientRef)
}

func TestOrchestrator_Post_Validation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{Room: workers.RoomConfig{MaxMessageRunes: 5}})
	ctx := context.Background()
	alice, aliceSink := f.connect(t, "alice", domain.RoleListener)
	outsider, _ := f.connect(t, "mallory", domain.RoleListener)
	f.join(t, alice, archives)
	aliceSink.Reset()

	_, err := f.orchestrator.Post(ctx, alice, archives, "   ", "")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.orchestrator.Post(ctx, alice, archives, "éééééé", "")
	req.ErrorIs(err, errors.ErrValidation)

	_, err = f.orchestrator.Post(ctx, outsider, archives, "hello", "")
	req.ErrorIs(err, errors.ErrNotFound)

	// Then nothing was broadcast
	req.Empty(aliceSink.Events())
}

func TestOrchestrator_Delete_Authorization(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	ctx := context.Background()
	alice, _ := f.connect(t, "alice", domain.RoleListener)
	bob, _ := f.connect(t, "bob", domain.RoleListener)
	mod, _ := f.connect(t, "moira", domain.RoleModerator)
	carol, carolSink := f.connect(t, "carol", domain.RoleListener)
	for _, c := range []domain.ConnectionID{alice, bob, mod, carol} {
		f.join(t, c, archives)
	}
	msg, err := f.orchestrator.Post(ctx, alice, archives, "my review", "")
	req.NoError(err)
	carolSink.Reset()

	// When a listener deletes someone else's message
	err = f.orchestrator.Delete(ctx, bob, archives, msg.ID)

	// Then it is refused and nobody is told
	req.ErrorIs(err, errors.ErrAuthorization)
	req.Empty(carolSink.OfType(event.MessageDeletedType))

	// When a moderator deletes it
	req.NoError(f.orchestrator.Delete(ctx, mod, archives, msg.ID))

	// Then every member gets the message id only
	deleted := carolSink.OfType(event.MessageDeletedType)
	req.Len(deleted, 1)
	req.Equal(msg.ID, deleted[0].(event.MessageDeleted).MessageID)

	// And unknown ids are reported
	err = f.orchestrator.Delete(ctx, mod, archives, "unknown")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestOrchestrator_Typing_ExpiresOnceAfterTTL(t *testing.T) {
	req := require.New(t)
	ttl := 200 * time.Millisecond
	f := newFixture(t, runtime.Config{Room: workers.RoomConfig{TypingTTL: ttl, SweepInterval: 10 * time.Millisecond}})
	ctx := context.Background()
	alice, aliceSink := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)
	bobSink.Reset()
	aliceSink.Reset()

	// When alice starts typing twice and then goes quiet
	start := time.Now()
	req.NoError(f.orchestrator.Typing(ctx, alice, archives, true))
	req.NoError(f.orchestrator.Typing(ctx, alice, archives, true))

	// Then bob is told she stopped, within the ttl and a sweep
	req.Eventually(func() bool {
		return len(bobSink.OfType(event.TypingStopType)) == 1
	}, time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)
	req.GreaterOrEqual(elapsed, ttl)
	req.Less(elapsed, ttl+150*time.Millisecond)

	// And exactly once each way, never to herself
	time.Sleep(100 * time.Millisecond)
	req.Len(bobSink.OfType(event.TypingStartType), 1)
	req.Len(bobSink.OfType(event.TypingStopType), 1)
	req.Empty(aliceSink.OfType(event.TypingStartType))
}

func TestOrchestrator_Disconnect_CleansUpOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{Room: workers.RoomConfig{TypingTTL: time.Minute}})
	ctx := context.Background()
	alice, _ := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)
	req.NoError(f.orchestrator.Typing(ctx, alice, archives, true))
	req.Eventually(func() bool {
		return len(bobSink.OfType(event.TypingStartType)) == 1
	}, time.Second, 5*time.Millisecond)

	// When the transport reports the drop twice
	f.orchestrator.Disconnect(alice)
	f.orchestrator.Disconnect(alice)

	// Then bob sees her typing stop and her leave, once
	req.Eventually(func() bool {
		return len(bobSink.OfType(event.UserLeftType)) == 1
	}, time.Second, 5*time.Millisecond)
	req.Len(bobSink.OfType(event.TypingStopType), 1)
	req.Equal(domain.LeaveDisconnect, bobSink.OfType(event.UserLeftType)[0].(event.UserLeft).Reason)
	_, present := f.registry.Member(archives, "alice")
	req.False(present)

	// And the connection cannot act anymore
	_, err := f.orchestrator.Post(ctx, alice, archives, "ghost", "")
	req.ErrorIs(err, errors.ErrConnectionClosed)
	_, err = f.orchestrator.Join(ctx, alice, archives)
	req.ErrorIs(err, errors.ErrConnectionClosed)
}

func TestOrchestrator_Signal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	ctx := context.Background()
	alice, _ := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	carol, carolSink := f.connect(t, "carol", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)
	f.join(t, carol, archives)

	// When alice sends an offer to bob
	offer := []byte(`{"type":"offer","sdp":"v=0"}`)
	req.NoError(f.orchestrator.Signal(ctx, alice, archives, "bob", offer))

	// Then bob alone receives it, tagged with its sender
	req.Eventually(func() bool {
		return len(bobSink.OfType(event.SignalType)) == 1
	}, time.Second, 5*time.Millisecond)
	relayed := bobSink.OfType(event.SignalType)[0].(event.SignalRelayed)
	req.Equal(domain.UserID("alice"), relayed.From)
	req.JSONEq(string(offer), string(relayed.Signal))
	req.Empty(carolSink.OfType(event.SignalType))

	// When the target is not in the room, the payload is dropped silently
	req.NoError(f.orchestrator.Signal(ctx, alice, archives, "dave", offer))

	// When the payload is malformed, the sender gets a validation error
	err := f.orchestrator.Signal(ctx, alice, archives, "bob", []byte(`not json`))
	req.ErrorIs(err, errors.ErrValidation)

	time.Sleep(50 * time.Millisecond)
	req.Len(bobSink.OfType(event.SignalType), 1)
}

func TestOrchestrator_SlowConsumer_IsDisconnected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{})
	alice, _ := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)

	// Given bob stops draining his buffer
	bobSink.mu.Lock()
	bobSink.err = errors.ErrSlowConsumer
	bobSink.mu.Unlock()

	// When alice posts
	_, err := f.orchestrator.Post(context.Background(), alice, archives, "hello", "")
	req.NoError(err)

	// Then bob is dropped from the room instead of blocking it
	req.Eventually(func() bool {
		_, present := f.registry.Member(archives, "bob")
		return !present
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestrator_Join_UnknownRoom(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIRoomDirectory(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	directory.EXPECT().Get(domain.RoomID("attic")).Return(domain.Room{}, errors.NotFound("room attic"))

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), runtime.NewRegistry(), directory, nil, runtime.Config{})
	req.NoError(orchestrator.Start(context.Background()))
	defer orchestrator.Stop()

	alice, err := orchestrator.Connect(domain.PublicParticipant{UserID: "alice", Role: domain.RoleListener}, &RecordingSink{})
	req.NoError(err)

	_, err = orchestrator.Join(context.Background(), alice, "attic")
	req.ErrorIs(err, errors.ErrNotFound)
	req.Empty(orchestrator.LiveRooms())
}

func TestOrchestrator_Join_AutoCreatesRoom(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIRoomDirectory(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	directory.EXPECT().Get(domain.RoomID("attic")).Return(domain.Room{}, errors.NotFound("room attic"))
	directory.EXPECT().Create(gomock.Any()).DoAndReturn(func(room domain.Room) error {
		req.Equal(domain.RoomID("attic"), room.ID)
		return nil
	})

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), runtime.NewRegistry(), directory, nil,
		runtime.Config{AutoCreateRooms: true})
	req.NoError(orchestrator.Start(context.Background()))
	defer orchestrator.Stop()

	alice, err := orchestrator.Connect(domain.PublicParticipant{UserID: "alice", Role: domain.RoleListener}, &RecordingSink{})
	req.NoError(err)

	res, err := orchestrator.Join(context.Background(), alice, "attic")
	req.NoError(err)
	req.True(res.Accepted)
}

func TestOrchestrator_IdleRoom_IsRetired(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{Room: workers.RoomConfig{
		IdleTimeout:   30 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	}})
	alice, _ := f.connect(t, "alice", domain.RoleListener)
	f.join(t, alice, archives)
	req.Len(f.orchestrator.LiveRooms(), 1)

	req.NoError(f.orchestrator.Leave(context.Background(), alice, archives))

	req.Eventually(func() bool {
		return len(f.orchestrator.LiveRooms()) == 0
	}, time.Second, 5*time.Millisecond)

	// And the room comes back on the next join
	f.join(t, alice, archives)
	req.Len(f.orchestrator.LiveRooms(), 1)
}

func TestOrchestrator_Channels_ListsLiveRoomQueues(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, runtime.Config{CommandBuffer: 8})
	alice, _ := f.connect(t, "alice", domain.RoleListener)

	// Given no room is live yet
	req.Empty(f.orchestrator.Channels())

	// When alice joins
	f.join(t, alice, archives)

	// Then the room queue is exposed for sampling
	channels := f.orchestrator.Channels()
	req.Len(channels, 1)
	req.Equal("room:archives", channels[0].Name)
	req.Equal(8, cap(channels[0].Channel.(chan domain.Command)))
}

// stallingInspector holds the room worker inside moderation until released.
type stallingInspector struct {
	entered chan struct{}
	release chan struct{}
}

func (s *stallingInspector) Inspect(text string) moderation.Verdict {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return moderation.Verdict{Text: text}
}

func TestOrchestrator_Leave_NotQueued_IsStillLeftOnDisconnect(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	inspector := &stallingInspector{entered: make(chan struct{}, 1), release: make(chan struct{})}
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, 0), registry, nil, inspector,
		runtime.Config{CommandBuffer: 1})
	req.NoError(orchestrator.Start(context.Background()))
	t.Cleanup(orchestrator.Stop)
	f := fixture{orchestrator: orchestrator, registry: registry}

	alice, _ := f.connect(t, "alice", domain.RoleListener)
	bob, bobSink := f.connect(t, "bob", domain.RoleListener)
	f.join(t, alice, archives)
	f.join(t, bob, archives)

	// Given the room worker is busy and its queue is full
	go func() { _, _ = orchestrator.Post(context.Background(), alice, archives, "first", "") }()
	<-inspector.entered
	go func() { _, _ = orchestrator.Post(context.Background(), alice, archives, "second", "") }()
	req.Eventually(func() bool {
		channels := orchestrator.Channels()
		return len(channels) == 1 && len(channels[0].Channel.(chan domain.Command)) == 1
	}, time.Second, 5*time.Millisecond)

	// When alice's leave cannot be queued in time
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req.ErrorIs(orchestrator.Leave(ctx, alice, archives), context.DeadlineExceeded)

	// And she disconnects once the room is free again
	close(inspector.release)
	orchestrator.Disconnect(alice)

	// Then she is gone and bob saw her leave exactly once
	req.Eventually(func() bool {
		_, present := registry.Member(archives, "alice")
		return !present && len(bobSink.OfType(event.UserLeftType)) == 1
	}, time.Second, 5*time.Millisecond)
	left := bobSink.OfType(event.UserLeftType)[0].(event.UserLeft)
	req.Equal(domain.LeaveDisconnect, left.Reason)
	req.Equal(1, registry.MemberCount(archives))
}
