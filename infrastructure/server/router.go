package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"reading-room/auth"
	"reading-room/contract"
	"reading-room/domain"
	"reading-room/errors"
	"reading-room/infrastructure/websocket"
	"reading-room/observability"
	"reading-room/services"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
)

var validate = validator.New()

type Dependencies struct {
	Log            *slog.Logger
	Validator      contract.ITokenValidator
	Chat           services.IChatService
	Socket         http.Handler
	Monitoring     *observability.MonitoringManager
	AllowedOrigins []string
}

type CreateRoomRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"max=128"`
}

type RoomView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type HistoryView struct {
	Messages   []websocket.MessageView `json:"messages"`
	NextCursor *string                 `json:"nextCursor"`
}

type HealthView struct {
	observability.MonitoringStats
	Uptime string `json:"uptime"`
}

type handler struct {
	log        *slog.Logger
	chat       services.IChatService
	monitoring *observability.MonitoringManager
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Dependencies) *chi.Mux {
	h := handler{log: d.Log, chat: d.Chat, monitoring: d.Monitoring}
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   lo.Ternary(len(d.AllowedOrigins) == 0, []string{"*"}, d.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.health)
	r.Get("/rooms", h.listRooms)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Validator))

		r.Handle("/ws", d.Socket)
		r.Post("/rooms", h.createRoom)
		r.Get("/rooms/{id}/messages", h.messages)
	})
	return r
}

func (h handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthView{
		MonitoringStats: h.monitoring.GetLatest(),
		Uptime:          h.monitoring.Uptime().String(),
	})
}

func (h handler) listRooms(w http.ResponseWriter, _ *http.Request) {
	summaries, err := h.chat.ListRooms()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(summaries, func(s domain.RoomSummary, _ int) RoomView {
		return RoomView{ID: string(s.ID), Name: s.Name, Members: s.Members}
	}))
}

func (h handler) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())
	if !identity.Role.CanModerate() {
		h.fail(w, errors.Forbidden("only moderators can create rooms"))
		return
	}
	var body CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.fail(w, errors.Validation("malformed body: %v", err))
		return
	}
	if err := validate.Struct(body); err != nil {
		h.fail(w, errors.Validation("%v", err))
		return
	}
	room, err := h.chat.CreateRoom(body.ID, body.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Info("Room created", "room_id", string(room.ID), "user_id", string(identity.UserID))
	writeJSON(w, http.StatusCreated, RoomView{ID: string(room.ID), Name: room.Name})
}

func (h handler) messages(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, next, err := h.chat.GetMessages(chi.URLParam(r, "id"), cursor, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryView{
		Messages: lo.Map(messages, func(m domain.ChatMessage, _ int) websocket.MessageView {
			return websocket.ToMessageView(m, "")
		}),
		NextCursor: next,
	})
}

func (h handler) fail(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"code": string(code), "message": message})
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.CodeAuth:
		return http.StatusUnauthorized
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
