package server_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reading-room/domain"
	"reading-room/errors"
	"reading-room/infrastructure/server"
	"reading-room/mocks"
	"reading-room/observability"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeChat struct {
	created []domain.Room
}

func (f *fakeChat) ListRooms() ([]domain.RoomSummary, error) {
	return []domain.RoomSummary{{ID: "poetry", Name: "Poetry", Members: 2}}, nil
}

func (f *fakeChat) CreateRoom(id, name string) (domain.Room, error) {
	room := domain.Room{ID: domain.RoomID(id), Name: name}
	f.created = append(f.created, room)
	return room, nil
}

func (f *fakeChat) GetMessages(room string, cursor *string, limit int) ([]domain.ChatMessage, *string, error) {
	next := "01H"
	return []domain.ChatMessage{{ID: "01J", RoomID: domain.RoomID(room), Seq: 7, Text: "hello"}}, &next, nil
}

func newRouter(t *testing.T, chat *fakeChat) (http.Handler, *mocks.MockITokenValidator) {
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockITokenValidator(ctrl)
	router := server.NewRouter(server.Dependencies{
		Log:        slog.New(slog.DiscardHandler),
		Validator:  validator,
		Chat:       chat,
		Socket:     http.NotFoundHandler(),
		Monitoring: observability.NewMonitoringManager(),
	})
	return router, validator
}

func TestRouter_PublicRoutes(t *testing.T) {
	req := require.New(t)
	router, _ := newRouter(t, &fakeChat{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`[{"id":"poetry","name":"Poetry","members":2}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), `"status":"starting"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, rec.Code)
}

func TestRouter_History_RequiresToken(t *testing.T) {
	req := require.New(t)
	router, validator := newRouter(t, &fakeChat{})

	validator.EXPECT().Validate("").Return(domain.PublicParticipant{}, errors.ErrAuth)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/poetry/messages", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	validator.EXPECT().Validate("good").Return(domain.PublicParticipant{UserID: "alice", Role: domain.RoleListener}, nil)
	r := httptest.NewRequest(http.MethodGet, "/rooms/poetry/messages?limit=10", nil)
	r.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)

	var history server.HistoryView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &history))
	req.Len(history.Messages, 1)
	req.Equal(uint64(7), history.Messages[0].Seq)
	req.Equal("01H", *history.NextCursor)
}

func TestRouter_CreateRoom(t *testing.T) {
	chat := &fakeChat{}
	router, validator := newRouter(t, chat)

	post := func(role domain.Role, body string) *httptest.ResponseRecorder {
		validator.EXPECT().Validate("good").Return(domain.PublicParticipant{UserID: "alice", Role: role}, nil)
		r := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(body))
		r.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec
	}

	t.Run("listeners are forbidden", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, post(domain.RoleListener, `{"id":"drama"}`).Code)
	})
	t.Run("invalid body", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, post(domain.RoleModerator, `{"name":"no id"}`).Code)
	})
	t.Run("moderators create rooms", func(t *testing.T) {
		req := require.New(t)
		rec := post(domain.RoleModerator, `{"id":"drama","name":"Drama"}`)
		req.Equal(http.StatusCreated, rec.Code)
		req.Len(chat.created, 1)
	})
}

