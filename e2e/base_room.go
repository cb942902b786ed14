package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reading-room/auth"
	"reading-room/client"
	"reading-room/domain"
	"reading-room/domain/event"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

type BaseRoomSuite struct {
	suite.Suite
	Config    Config
	validator *auth.TokenValidator
	closers   []func()
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRoomSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("E2E_SERVER_URL is not set")
	}
	s.Require().NotEmpty(s.Config.JWTSecret, "JWT_SECRET is required to mint tokens")
	s.validator = auth.NewTokenValidator(s.Config.JWTSecret, s.Config.JWTIssuer)
}

func (s *BaseRoomSuite) Header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

func (s *BaseRoomSuite) Token(user string, role domain.Role) string {
	token, err := s.validator.GenerateToken(user, user, role, 10*time.Minute)
	s.Require().NoError(err)
	return token
}

// TearDownTest closes the sessions opened by the test, steps share them.
func (s *BaseRoomSuite) TearDownTest() {
	for _, closeFn := range s.closers {
		closeFn()
	}
	s.closers = nil
}

// Join dials the server and runs a session in room until the test ends.
// Peers use real WebRTC links over host candidates only.
func (s *BaseRoomSuite) Join(name, user string, role domain.Role, room domain.RoomID) *client.Session {
	t := s.T()
	s.Header(t, name)
	log := slog.New(slog.DiscardHandler)
	token := s.Token(user, role)

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := client.Dial(ctx, s.Config.ServerURL, token, log)
	s.Require().NoError(err, "Failed to reach "+s.Config.ServerURL)

	self, err := auth.PeekIdentity(token)
	s.Require().NoError(err)

	session := client.NewSession(conn, self, room, client.NewPionFactory(nil, log, nil), log, s.tracer(t, user))
	go func() { _ = session.Run(ctx) }()
	s.closers = append(s.closers, func() {
		cancel()
		_ = conn.Close()
	})
	return session
}

// CreateRoom registers room through the HTTP API with a moderator token.
func (s *BaseRoomSuite) CreateRoom(room domain.RoomID, name string) {
	body, err := json.Marshal(map[string]string{"id": string(room), "name": name})
	s.Require().NoError(err)
	resp := s.do(http.MethodPost, "/rooms", bytes.NewReader(body), s.Token("e2e-moderator", domain.RoleModerator))
	defer func() { _ = resp.Body.Close() }()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
}

// History reads the archived history of room, newest first.
func (s *BaseRoomSuite) History(room domain.RoomID) []map[string]any {
	resp := s.do(http.MethodGet, fmt.Sprintf("/rooms/%s/messages", room), nil, s.Token("e2e-reader", domain.RoleListener))
	defer func() { _ = resp.Body.Close() }()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var history struct {
		Messages []map[string]any `json:"messages"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&history))
	return history.Messages
}

func (s *BaseRoomSuite) do(method, path string, body *bytes.Reader, token string) *http.Response {
	var request *http.Request
	var err error
	if body == nil {
		request, err = http.NewRequest(method, s.Config.APIURL+path, nil)
	} else {
		request, err = http.NewRequest(method, s.Config.APIURL+path, body)
	}
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(request)
	s.Require().NoError(err)
	return resp
}

// tracer logs received events when E2E_DEBUG_JSON is enabled.
func (s *BaseRoomSuite) tracer(t *testing.T, user string) eventTracer {
	return eventTracer{t: t, user: user, enabled: s.Config.DebugJSON}
}

type eventTracer struct {
	t       *testing.T
	user    string
	enabled bool
}

func (e eventTracer) Consume(_ context.Context, ev event.DomainEvent) error {
	if !e.enabled {
		return nil
	}
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return err
	}
	e.t.Logf("%s <- %s\n%s", e.user, ev.Type(), data)
	return nil
}
