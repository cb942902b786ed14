// Package runtime owns the connection lifecycle: it is the only entry point that mutates presence,
// and it routes every room intent to the single worker of that room.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
	"reading-room/observability"
	"reading-room/runtime/workers"
	"reading-room/signaling"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultCommandBuffer = 64

type Config struct {
	CommandBuffer   int
	AutoCreateRooms bool
	Room            workers.RoomConfig
}

// shard is the command queue of one live room. pending counts dispatchers about to enqueue,
// a room is only retired when nobody is.
type shard struct {
	commands chan domain.Command
	pending  int
}

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	registry       contract.IRegistry
	supervisor     contract.ISupervisor
	directory      contract.IRoomDirectory
	moderator      workers.Inspector
	relay          signaling.Relay
	permanentSinks []contract.EventSink
	cfg            Config
	shards         map[domain.RoomID]*shard
	sessions       sync.Map // domain.ConnectionID -> *session
	running        bool
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry,
	directory contract.IRoomDirectory, moderator workers.Inspector, cfg Config) *Orchestrator {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultCommandBuffer
	}
	return &Orchestrator{
		log:        log,
		registry:   registry,
		supervisor: supervisor,
		directory:  directory,
		moderator:  moderator,
		relay:      signaling.NewRelay(cfg.Room.MaxSignalBytes),
		cfg:        cfg,
		shards:     make(map[domain.RoomID]*shard),
	}
}

// Add registers sinks receiving every room event, such as the archive. Call it before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start runs the supervisor in the background. Room workers are started on first use.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	o.running = true

	go func(ctx context.Context, done chan struct{}) {
		defer close(done)
		o.supervisor.Run(ctx)
	}(o.ctx, o.done)

	o.log.Info("Orchestrator started")
	return nil
}

// Stop cancels every room worker and waits for the supervisor to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	o.log.Info("Requesting orchestrator shutdown")
	cancel()
	<-done
}

// Connect registers an authenticated connection. Every later call for this connection
// acts with the identity validated at handshake.
func (o *Orchestrator) Connect(identity domain.PublicParticipant, sink contract.EventSink) (domain.ConnectionID, error) {
	if !o.isRunning() {
		return "", errors.ErrOrchestratorStopped
	}
	id := domain.ConnectionID(uuid.NewString())
	o.sessions.Store(id, newSession(id, identity, sink))
	o.registry.RegisterConnection(id, sink)
	o.log.Debug("Connection registered", "connection_id", string(id), "user_id", string(identity.UserID))
	return id, nil
}

func (o *Orchestrator) Join(ctx context.Context, connection domain.ConnectionID, room domain.RoomID) (domain.JoinResult, error) {
	s, err := o.session(connection)
	if err != nil {
		return domain.JoinResult{}, err
	}
	if err := o.resolveRoom(room); err != nil {
		return domain.JoinResult{}, err
	}
	fresh, err := s.track(room)
	if err != nil {
		return domain.JoinResult{}, err
	}

	reply := make(chan domain.Reply[domain.JoinResult], 1)
	cmd := domain.JoinRoomCommand{
		Room: room,
		Participant: domain.Participant{
			ConnectionID:    connection,
			UserID:          s.identity.UserID,
			DisplayIdentity: s.identity.DisplayIdentity,
			Role:            s.identity.Role,
			JoinedAt:        time.Now().UTC(),
		},
		Reply: reply,
	}
	if err := o.dispatch(ctx, cmd); err != nil {
		if fresh {
			s.untrack(room)
		}
		return domain.JoinResult{}, err
	}

	// On a caller timeout the join may still be applied, the room stays tracked for the disconnect
	res, err := await(ctx, o.runContext(), reply)
	if err != nil && fresh && !errors.Is(err, ctx.Err()) {
		s.untrack(room)
	}
	return res, err
}

// Leave is a no-op for rooms the connection never joined.
func (o *Orchestrator) Leave(ctx context.Context, connection domain.ConnectionID, room domain.RoomID) error {
	s, err := o.session(connection)
	if err != nil {
		return err
	}
	if !s.has(room) {
		return nil
	}
	reply := make(chan domain.Reply[struct{}], 1)
	if err := o.dispatch(ctx, domain.LeaveRoomCommand{
		Room:       room,
		Connection: connection,
		Reason:     domain.LeaveExplicit,
		Reply:      reply,
	}); err != nil {
		// Not queued: the room stays tracked so a retry or the disconnect still leaves it
		return err
	}
	// Queued leaves are always applied, a leave racing with a disconnect is a no-op in the worker
	s.untrack(room)
	_, err = await(ctx, o.runContext(), reply)
	return err
}

// Disconnect leaves every room of the connection. It runs once per connection,
// whatever the number of close notifications the transport fires.
func (o *Orchestrator) Disconnect(connection domain.ConnectionID) {
	v, loaded := o.sessions.LoadAndDelete(connection)
	if !loaded {
		return
	}
	s := v.(*session)
	rooms := s.close()

	// No join can be applied once the sink is gone, see Registry.Join
	o.registry.UnregisterConnection(connection)

	ctx := o.runContext()
	for _, room := range rooms {
		err := o.dispatch(ctx, domain.LeaveRoomCommand{
			Room:       room,
			Connection: connection,
			Reason:     domain.LeaveDisconnect,
		})
		if err != nil {
			o.log.Debug("Leave on disconnect not dispatched", "room_id", string(room), "error", err)
		}
	}

	if closer, ok := s.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			o.log.Debug("Closing sink failed", "connection_id", string(connection), "error", err)
		}
	}
	o.log.Debug("Connection released", "connection_id", string(connection), "rooms", len(rooms))
}

func (o *Orchestrator) Post(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, text, clientRef string) (domain.ChatMessage, error) {
	s, err := o.session(connection)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if !s.has(room) {
		return domain.ChatMessage{}, errors.NotFound("not a participant of room %s", room)
	}
	reply := make(chan domain.Reply[domain.ChatMessage], 1)
	if err := o.dispatch(ctx, domain.PostMessageCommand{
		Room:       room,
		Connection: connection,
		Text:       text,
		ClientRef:  clientRef,
		Reply:      reply,
	}); err != nil {
		return domain.ChatMessage{}, err
	}
	return await(ctx, o.runContext(), reply)
}

func (o *Orchestrator) Delete(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, messageID string) error {
	s, err := o.session(connection)
	if err != nil {
		return err
	}
	if !s.has(room) {
		return errors.NotFound("not a participant of room %s", room)
	}
	if messageID == "" {
		return errors.Validation("message id is required")
	}
	reply := make(chan domain.Reply[struct{}], 1)
	if err := o.dispatch(ctx, domain.DeleteMessageCommand{
		Room:       room,
		Connection: connection,
		MessageID:  messageID,
		Reply:      reply,
	}); err != nil {
		return err
	}
	_, err = await(ctx, o.runContext(), reply)
	return err
}

// Signal only fails on a malformed payload. Absent ends are dropped without telling the sender.
func (o *Orchestrator) Signal(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, target domain.UserID, payload []byte) error {
	if err := o.relay.Validate(payload); err != nil {
		return err
	}
	s, err := o.session(connection)
	if err != nil {
		return err
	}
	if !s.has(room) {
		observability.SignalsDropped.Inc()
		return nil
	}
	return o.dispatch(ctx, domain.RelaySignalCommand{
		Room:       room,
		Connection: connection,
		Target:     target,
		Payload:    json.RawMessage(payload),
	})
}

func (o *Orchestrator) Typing(ctx context.Context, connection domain.ConnectionID, room domain.RoomID, typing bool) error {
	s, err := o.session(connection)
	if err != nil {
		return err
	}
	if !s.has(room) {
		return nil
	}
	return o.dispatch(ctx, domain.TypingCommand{Room: room, Connection: connection, Typing: typing})
}

// LiveRooms returns the rooms that currently have a worker.
func (o *Orchestrator) LiveRooms() []domain.RoomID {
	o.mu.Lock()
	defer o.mu.Unlock()
	rooms := make([]domain.RoomID, 0, len(o.shards))
	for id := range o.shards {
		rooms = append(rooms, id)
	}
	return rooms
}

func (o *Orchestrator) dispatch(ctx context.Context, cmd domain.Command) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return errors.ErrOrchestratorStopped
	}
	sh := o.shardLocked(cmd.RoomID())
	sh.pending++
	runCtx := o.ctx
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		sh.pending--
		o.mu.Unlock()
	}()

	select {
	case sh.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return errors.ErrOrchestratorStopped
	}
}

// shardLocked returns the queue of a room, starting its worker on first use.
func (o *Orchestrator) shardLocked(room domain.RoomID) *shard {
	if sh, ok := o.shards[room]; ok {
		return sh
	}
	commands := make(chan domain.Command, o.cfg.CommandBuffer)
	worker := workers.NewRoomWorker(room, commands, o.registry, o.moderator, o.cfg.Room, o.log).
		WithSinks(o.permanentSinks...).
		OnDeliveryFailure(func(connection domain.ConnectionID) {
			observability.SlowConsumers.Inc()
			// The worker must never wait on its own queue
			go o.Disconnect(connection)
		}).
		OnIdle(func() bool { return o.retire(room, commands) })

	sh := &shard{commands: commands}
	o.shards[room] = sh
	observability.RoomsActive.Set(float64(len(o.shards)))
	o.supervisor.Start(o.ctx, worker)
	o.log.Debug("Room worker started", "room_id", string(room))
	return sh
}

// retire is called by an idle worker. It succeeds only when no command is queued or about to be.
func (o *Orchestrator) retire(room domain.RoomID, commands chan domain.Command) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	sh, ok := o.shards[room]
	if !ok || sh.commands != commands {
		return true
	}
	if sh.pending > 0 || len(sh.commands) > 0 || o.registry.MemberCount(room) > 0 {
		return false
	}
	delete(o.shards, room)
	observability.RoomsActive.Set(float64(len(o.shards)))
	return true
}

func (o *Orchestrator) resolveRoom(room domain.RoomID) error {
	if o.directory == nil {
		return nil
	}
	_, err := o.directory.Get(room)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errors.ErrNotFound) || !o.cfg.AutoCreateRooms {
		return err
	}
	created := domain.Room{ID: room, Name: string(room), CreatedAt: time.Now().UTC()}
	if err := o.directory.Create(created); err != nil {
		return err
	}
	o.log.Info("Room created on first join", "room_id", string(room))
	return nil
}

func (o *Orchestrator) session(connection domain.ConnectionID) (*session, error) {
	v, ok := o.sessions.Load(connection)
	if !ok {
		return nil, errors.ErrConnectionClosed
	}
	return v.(*session), nil
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) runContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil {
		return context.Background()
	}
	return o.ctx
}

// await waits for the worker reply, the caller giving up or the orchestrator stopping.
func await[T any](ctx, run context.Context, reply chan domain.Reply[T]) (T, error) {
	var zero T
	select {
	case r := <-reply:
		return r.Value, r.Err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-run.Done():
		return zero, errors.ErrOrchestratorStopped
	}
}

// Channels exposes the command queue of every live room for sampling.
func (o *Orchestrator) Channels() []workers.NamedChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	channels := make([]workers.NamedChannel, 0, len(o.shards))
	for room, s := range o.shards {
		channels = append(channels, workers.NamedChannel{Name: "room:" + string(room), Channel: s.commands})
	}
	return channels
}
