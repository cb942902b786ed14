package workers

import (
	"context"
	"fmt"
	"log/slog"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/domain/chat"
	"reading-room/domain/event"
	"reading-room/domain/typing"
	"reading-room/errors"
	"reading-room/moderation"
	"reading-room/observability"
	"reading-room/signaling"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
)

const (
	DefaultMaxMessageRunes = 2000
	DefaultChatLogCapacity = 500
	DefaultSweepInterval   = 250 * time.Millisecond
)

// Inspector flags chat text. moderation.Moderator implements it.
type Inspector interface {
	Inspect(text string) moderation.Verdict
}

type RoomConfig struct {
	TypingTTL       time.Duration
	SweepInterval   time.Duration
	IdleTimeout     time.Duration // <= 0 keeps the room forever
	ChatLogCapacity int
	MaxMessageRunes int
	MaxSignalBytes  int
}

// RoomWorker is the single writer of one room: presence, chat and typing state
// only change while it processes a command, so every member observes events in the same order.
// Its state lives in the struct, a restart after a panic keeps the chat log and typing state.
type RoomWorker struct {
	room           domain.RoomID
	commands       <-chan domain.Command
	registry       contract.IRegistry
	moderator      Inspector
	relay          signaling.Relay
	chat           *chat.Log
	typing         *typing.Tracker
	permanentSinks []contract.EventSink
	cfg            RoomConfig
	log            *slog.Logger

	onDeliveryFailure func(domain.ConnectionID)
	retire            func() bool
	now               func() time.Time
	newID             func() string
	lastActivity      time.Time
}

func NewRoomWorker(room domain.RoomID, commands <-chan domain.Command, registry contract.IRegistry,
	moderator Inspector, cfg RoomConfig, log *slog.Logger) *RoomWorker {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = DefaultMaxMessageRunes
	}
	if cfg.ChatLogCapacity == 0 {
		cfg.ChatLogCapacity = DefaultChatLogCapacity
	}
	return &RoomWorker{
		room:         room,
		commands:     commands,
		registry:     registry,
		moderator:    moderator,
		relay:        signaling.NewRelay(cfg.MaxSignalBytes),
		chat:         chat.NewLog(cfg.ChatLogCapacity),
		typing:       typing.NewTracker(cfg.TypingTTL),
		cfg:          cfg,
		log:          log.With("room_id", string(room)),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return ulid.Make().String() },
		lastActivity: time.Now().UTC(),
	}
}

// WithSinks adds sinks receiving every event of the room once, whoever the recipients are.
func (w *RoomWorker) WithSinks(sinks ...contract.EventSink) *RoomWorker {
	w.permanentSinks = append(w.permanentSinks, sinks...)
	return w
}

// OnDeliveryFailure is called, from the worker goroutine, for every connection whose sink refused an event.
// It must not block on the room.
func (w *RoomWorker) OnDeliveryFailure(fn func(domain.ConnectionID)) *RoomWorker {
	w.onDeliveryFailure = fn
	return w
}

// OnIdle is asked whether the room may be retired once it has been empty for IdleTimeout.
// Returning true stops the worker for good.
func (w *RoomWorker) OnIdle(fn func() bool) *RoomWorker {
	w.retire = fn
	return w
}

func (w *RoomWorker) Name() string { return fmt.Sprintf("RoomWorker[%s]", w.room) }

func (w *RoomWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				return nil
			}
			w.lastActivity = w.now()
			w.Handle(ctx, cmd)
		case <-ticker.C:
			now := w.now()
			w.Sweep(ctx, now)
			if w.idle(now) {
				w.log.Debug("Room retired")
				return nil
			}
		}
	}
}

// Handle applies one command. It is exported for tests driving the worker without its loop.
func (w *RoomWorker) Handle(ctx context.Context, cmd domain.Command) {
	defer func() {
		if r := recover(); r != nil {
			// Unblock the caller before the supervisor restarts the loop
			replyError(cmd, errors.ErrWorkerPanic)
			panic(r)
		}
	}()

	switch c := cmd.(type) {
	case domain.JoinRoomCommand:
		result, err := w.join(ctx, c.Participant)
		reply(c.Reply, result, err)
	case domain.LeaveRoomCommand:
		w.leave(ctx, c.Connection, c.Reason)
		reply(c.Reply, struct{}{}, nil)
	case domain.PostMessageCommand:
		msg, err := w.post(ctx, c)
		reply(c.Reply, msg, err)
	case domain.DeleteMessageCommand:
		err := w.delete(ctx, c.Connection, c.MessageID)
		reply(c.Reply, struct{}{}, err)
	case domain.RelaySignalCommand:
		w.signal(ctx, c)
	case domain.TypingCommand:
		w.setTyping(ctx, c)
	default:
		w.log.Warn("Unknown command", "type", fmt.Sprintf("%T", cmd))
	}
}

// Sweep expires typing indicators not refreshed within the ttl.
func (w *RoomWorker) Sweep(ctx context.Context, now time.Time) {
	for _, user := range w.typing.Sweep(now) {
		w.broadcast(ctx, event.TypingStopped{Room: w.room, User: user}, user)
	}
}

func (w *RoomWorker) join(ctx context.Context, p domain.Participant) (domain.JoinResult, error) {
	previous, replaced, err := w.registry.Join(w.room, p)
	if err != nil {
		return domain.JoinResult{}, err
	}

	if replaced && previous.ConnectionID == p.ConnectionID {
		// Same connection joining twice: nothing changes
		return w.joinResult(), nil
	}

	if replaced {
		w.log.Debug("Connection replaced", "user_id", string(p.UserID),
			"old_connection_id", string(previous.ConnectionID),
			"connection_id", string(p.ConnectionID))
		if w.typing.Stop(previous.UserID) {
			w.broadcast(ctx, event.TypingStopped{Room: w.room, User: previous.UserID}, previous.UserID)
		}
		w.broadcast(ctx, event.UserLeft{
			Room:        w.room,
			Participant: previous.Public(),
			Reason:      domain.LeaveReplaced,
		}, p.UserID)
	}

	members := w.registry.Members(w.room)
	peers := lo.FilterMap(members, func(m domain.Participant, _ int) (domain.UserID, bool) {
		return m.UserID, m.UserID != p.UserID
	})
	if sink, ok := w.registry.SinkFor(p.ConnectionID); ok {
		w.deliver(ctx, p.ConnectionID, sink, event.PeerList{Room: w.room, Peers: peers})
	}

	// the joiner learns about the room from its peerList
	w.broadcast(ctx, event.UserJoined{Room: w.room, Participant: p.Public()}, p.UserID)
	w.system(ctx, fmt.Sprintf("%s joined the room", displayName(p)))

	w.log.Info("Participant joined", "user_id", string(p.UserID), "connection_id", string(p.ConnectionID))
	return w.joinResult(), nil
}

func (w *RoomWorker) leave(ctx context.Context, connection domain.ConnectionID, reason domain.LeaveReason) {
	p, ok := w.registry.Leave(w.room, connection)
	if !ok {
		// Explicit leaves race with disconnects
		return
	}
	if w.typing.Stop(p.UserID) {
		w.broadcast(ctx, event.TypingStopped{Room: w.room, User: p.UserID}, p.UserID)
	}
	w.broadcast(ctx, event.UserLeft{Room: w.room, Participant: p.Public(), Reason: reason}, "")
	w.system(ctx, fmt.Sprintf("%s left the room", displayName(p)))

	w.log.Info("Participant left", "user_id", string(p.UserID),
		"connection_id", string(connection), "reason", string(reason))
}

func (w *RoomWorker) post(ctx context.Context, c domain.PostMessageCommand) (domain.ChatMessage, error) {
	sender, ok := w.registry.Participant(w.room, c.Connection)
	if !ok {
		return domain.ChatMessage{}, errors.NotFound("not a participant of room %s", w.room)
	}

	text := strings.TrimSpace(c.Text)
	if text == "" {
		return domain.ChatMessage{}, errors.Validation("message is empty")
	}
	if utf8.RuneCountInString(text) > w.cfg.MaxMessageRunes {
		return domain.ChatMessage{}, errors.Validation("message exceeds %d characters", w.cfg.MaxMessageRunes)
	}

	flagged := false
	if w.moderator != nil {
		verdict := w.moderator.Inspect(text)
		text, flagged = verdict.Text, verdict.Flagged
	}

	msg := w.chat.Append(domain.ChatMessage{
		ID:        w.newID(),
		RoomID:    w.room,
		Sender:    sender.Public(),
		Text:      text,
		CreatedAt: w.now(),
		IsFlagged: flagged,
	})

	// Only the sender gets its clientRef back, to reconcile its local echo
	for _, r := range w.registry.Recipients(w.room) {
		evt := event.MessagePosted{Message: msg}
		if r.Participant.ConnectionID == sender.ConnectionID {
			evt.ClientRef = c.ClientRef
		}
		w.deliver(ctx, r.Participant.ConnectionID, r.Sink, evt)
	}
	w.publish(ctx, event.MessagePosted{Message: msg})
	return msg, nil
}

func (w *RoomWorker) delete(ctx context.Context, connection domain.ConnectionID, messageID string) error {
	requester, ok := w.registry.Participant(w.room, connection)
	if !ok {
		return errors.NotFound("not a participant of room %s", w.room)
	}
	if _, err := w.chat.Delete(messageID, requester); err != nil {
		if errors.Is(err, errors.ErrAuthorization) {
			w.log.Warn("Unauthorized delete", "user_id", string(requester.UserID),
				"role", string(requester.Role), "message_id", messageID)
		}
		return err
	}
	w.broadcast(ctx, event.MessageDeleted{Room: w.room, MessageID: messageID, DeletedBy: requester.UserID}, "")
	return nil
}

func (w *RoomWorker) signal(ctx context.Context, c domain.RelaySignalCommand) {
	if err := w.relay.Validate(c.Payload); err != nil {
		w.log.Debug("Malformed signal reached the room", "error", err)
		return
	}
	// Membership is checked now, not when the payload was sent
	route, err := w.relay.Resolve(signaling.NewRoomPresence(w.registry, w.room), c.Connection, c.Target)
	if err != nil {
		observability.SignalsDropped.Inc()
		w.log.Debug("Signal dropped", "connection_id", string(c.Connection), "error", err)
		return
	}
	sink, ok := w.registry.SinkFor(route.Target.ConnectionID)
	if !ok {
		observability.SignalsDropped.Inc()
		return
	}
	evt := event.SignalRelayed{Room: w.room, From: route.From, Signal: c.Payload}
	w.deliver(ctx, route.Target.ConnectionID, sink, evt)
	w.publish(ctx, evt)
}

func (w *RoomWorker) setTyping(ctx context.Context, c domain.TypingCommand) {
	p, ok := w.registry.Participant(w.room, c.Connection)
	if !ok {
		w.log.Debug("Typing from a non participant ignored", "connection_id", string(c.Connection))
		return
	}
	if c.Typing {
		if w.typing.Start(p.UserID, w.now()) {
			w.broadcast(ctx, event.TypingStarted{Room: w.room, User: p.UserID}, p.UserID)
		}
		return
	}
	if w.typing.Stop(p.UserID) {
		w.broadcast(ctx, event.TypingStopped{Room: w.room, User: p.UserID}, p.UserID)
	}
}

// system appends a presence notice to the chat log and broadcasts it like any message.
func (w *RoomWorker) system(ctx context.Context, text string) {
	msg := w.chat.Append(domain.ChatMessage{
		ID:        w.newID(),
		RoomID:    w.room,
		Text:      text,
		CreatedAt: w.now(),
		IsSystem:  true,
	})
	w.broadcast(ctx, event.MessagePosted{Message: msg}, "")
}

// broadcast delivers evt to every member except the given user, then to the permanent sinks.
func (w *RoomWorker) broadcast(ctx context.Context, evt event.DomainEvent, except domain.UserID) {
	for _, r := range w.registry.Recipients(w.room) {
		if except != "" && r.Participant.UserID == except {
			continue
		}
		w.deliver(ctx, r.Participant.ConnectionID, r.Sink, evt)
	}
	w.publish(ctx, evt)
}

func (w *RoomWorker) deliver(ctx context.Context, connection domain.ConnectionID, sink contract.EventSink, evt event.DomainEvent) {
	if err := sink.Consume(ctx, evt); err != nil {
		w.log.Warn("Delivery failed, dropping connection",
			"connection_id", string(connection), "event", string(evt.Type()), "error", err)
		if w.onDeliveryFailure != nil {
			w.onDeliveryFailure(connection)
		}
	}
}

func (w *RoomWorker) publish(ctx context.Context, evt event.DomainEvent) {
	observability.EventsPublished.WithLabelValues(string(evt.Type())).Inc()
	for _, sink := range w.permanentSinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Debug("Permanent sink refused event", "event", string(evt.Type()), "error", err)
		}
	}
}

func (w *RoomWorker) idle(now time.Time) bool {
	if w.cfg.IdleTimeout <= 0 || w.retire == nil {
		return false
	}
	if w.registry.MemberCount(w.room) > 0 || now.Sub(w.lastActivity) < w.cfg.IdleTimeout {
		return false
	}
	return w.retire()
}

func (w *RoomWorker) joinResult() domain.JoinResult {
	members := lo.Map(w.registry.Members(w.room), func(m domain.Participant, _ int) domain.PublicParticipant {
		return m.Public()
	})
	return domain.JoinResult{Accepted: true, Members: members}
}

func displayName(p domain.Participant) string {
	if p.DisplayIdentity != "" {
		return p.DisplayIdentity
	}
	return string(p.UserID)
}

func reply[T any](ch chan domain.Reply[T], value T, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- domain.Reply[T]{Value: value, Err: err}:
	default:
	}
}

func replyError(cmd domain.Command, err error) {
	switch c := cmd.(type) {
	case domain.JoinRoomCommand:
		reply(c.Reply, domain.JoinResult{}, err)
	case domain.LeaveRoomCommand:
		reply(c.Reply, struct{}{}, err)
	case domain.PostMessageCommand:
		reply(c.Reply, domain.ChatMessage{}, err)
	case domain.DeleteMessageCommand:
		reply(c.Reply, struct{}{}, err)
	}
}
