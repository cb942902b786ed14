package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"reading-room/auth"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/domain/event"
	"reading-room/errors"
	"reading-room/observability"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const DefaultRequestTimeout = 10 * time.Second

type HandlerConfig struct {
	BufferSize     int
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Handler upgrades authenticated requests and turns inbound frames into room intents.
// It must be mounted behind auth.Middleware.
type Handler struct {
	service  contract.IRoomService
	log      *slog.Logger
	cfg      HandlerConfig
	upgrader gorilla.Upgrader
}

func NewHandler(service contract.IRoomService, log *slog.Logger, cfg HandlerConfig) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Handler{
		service: service,
		log:     log,
		cfg:     cfg,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Failed to upgrade connection", "error", err)
		return
	}

	conn := NewConnection(ws, h.cfg.BufferSize, h.log)
	id, err := h.service.Connect(identity, conn)
	if err != nil {
		h.log.Warn("Connection refused", "user_id", string(identity.UserID), "error", err)
		_ = ws.Close()
		return
	}
	conn.setID(id)
	h.log.Info("Client connected", "connection_id", string(id), "user_id", string(identity.UserID))

	go conn.WritePump()
	go h.serve(conn)
}

func (h *Handler) serve(conn *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.service.Disconnect(conn.ID())
		h.log.Info("Client disconnected", "connection_id", string(conn.ID()))
	}()

	conn.ReadPump(func(data []byte) {
		h.handle(ctx, conn, data)
	})
}

// handle runs one request to completion before the next frame is read, so requests of a connection keep their order.
func (h *Handler) handle(ctx context.Context, conn *Connection, data []byte) {
	req, err := DecodeRequest(data)
	if err != nil {
		h.reject(ctx, conn, req, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.RequestTimeout)
	defer cancel()

	id := conn.ID()
	switch req.Type {
	case JoinRoomType:
		_, err = h.service.Join(ctx, id, req.Room)
	case LeaveRoomType:
		err = h.service.Leave(ctx, id, req.Room)
	case ChatType:
		payload := req.Payload.(ChatPayload)
		_, err = h.service.Post(ctx, id, req.Room, payload.Text, payload.ClientRef)
	case DeleteMessageType:
		payload := req.Payload.(DeleteMessagePayload)
		err = h.service.Delete(ctx, id, req.Room, payload.MessageID)
	case SignalType:
		payload := req.Payload.(SignalPayload)
		err = h.service.Signal(ctx, id, req.Room, domain.NormalizeIdentity(payload.TargetID), payload.Signal)
	case TypingStartType:
		err = h.service.Typing(ctx, id, req.Room, true)
	case TypingStopType:
		err = h.service.Typing(ctx, id, req.Room, false)
	}
	if err != nil {
		h.reject(ctx, conn, req, err)
	}
}

func (h *Handler) reject(ctx context.Context, conn *Connection, req Request, err error) {
	rejected := event.NewRejected(req.Room, req.Type, err)
	observability.RequestsRejected.WithLabelValues(lo.CoalesceOrEmpty(req.Type, "unknown"), string(rejected.Code)).Inc()
	if rejected.Code == errors.CodeInternal {
		h.log.Error("Request failed", "connection_id", string(conn.ID()), "type", req.Type, "error", err)
		// Internal details stay in the logs
		rejected.Reason = "internal error"
	} else {
		h.log.Debug("Request rejected", "connection_id", string(conn.ID()), "type", req.Type, "error", err)
	}
	if err := conn.Consume(ctx, rejected); err != nil {
		h.log.Debug("Unable to report rejection", "connection_id", string(conn.ID()), "error", err)
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 || lo.Contains(allowed, "*") {
			return true
		}
		return lo.Contains(allowed, origin)
	}
}
