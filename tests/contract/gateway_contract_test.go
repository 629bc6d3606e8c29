package contract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dittotube/watchparty/internal/config"
	"github.com/dittotube/watchparty/internal/dto"
	"github.com/dittotube/watchparty/internal/handler"
	"github.com/dittotube/watchparty/internal/models"
	"github.com/dittotube/watchparty/internal/router"
	"github.com/dittotube/watchparty/internal/service"
)

type stubRoomService struct {
	slug      string
	destroyed bool
}

func (s *stubRoomService) Start(context.Context) {}

func (s *stubRoomService) EnterRoom(_ context.Context, name string) (string, error) {
	slug := service.Slugify(name)
	if slug == "" {
		return "", service.ErrInvalidRoomName
	}
	s.slug = slug
	return slug, nil
}

func (s *stubRoomService) LeaveRoom(context.Context) error {
	s.slug = ""
	return nil
}

func (s *stubRoomService) DestroyRoom(_ context.Context, passcode string) error {
	if passcode != "3021" {
		return service.ErrBadPasscode
	}
	if s.slug == "" {
		return service.ErrNoActiveRoom
	}
	s.slug = ""
	s.destroyed = true
	return nil
}

func (s *stubRoomService) SendMessage(context.Context, models.User, string, string) error {
	return nil
}

func (s *stubRoomService) ToggleReaction(context.Context, models.User, string, string) error {
	return nil
}

func (s *stubRoomService) DeleteMessage(context.Context, string) error { return nil }

func (s *stubRoomService) Snapshot(context.Context) (service.RoomSnapshot, error) {
	return service.RoomSnapshot{Slug: s.slug, Status: "connected", Destroyed: s.destroyed}, nil
}

func (s *stubRoomService) Subscribe() (<-chan dto.ChatSocketEvent, func()) {
	ch := make(chan dto.ChatSocketEvent)
	return ch, func() { close(ch) }
}

func (s *stubRoomService) ServeConnection(*websocket.Conn, models.User) {}

type stubVideoService struct{}

func (stubVideoService) Lookup(_ context.Context, link string) (dto.VideoInfoResponse, error) {
	if _, ok := service.ExtractVideoID(link); !ok {
		return dto.VideoInfoResponse{}, service.ErrVideoIDNotFound
	}
	return dto.VideoInfoResponse{Title: "Some Video", AuthorName: "Some Channel"}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newGatewayApp(t *testing.T) (*fiber.App, *stubRoomService) {
	t.Helper()

	cfg := config.Config{AppName: "Watchparty Gateway", AppEnv: "test"}
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()

	rooms := &stubRoomService{}
	identity := service.NewIdentityService(logger)

	app := fiber.New(fiber.Config{AppName: cfg.AppName})
	router.Register(app, cfg, router.Dependencies{
		IdentityHandler: handler.NewIdentityHandler(identity, validate, logger),
		RoomHandler:     handler.NewRoomHandler(rooms, validate, logger),
		VideoHandler:    handler.NewVideoHandler(stubVideoService{}, validate, logger),
		ChatHandler:     handler.NewChatHandler(rooms, identity, logger),
	})

	return app, rooms
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*envelope, int) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return &payload, resp.StatusCode
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	app, _ := newGatewayApp(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestIdentityLifecycle(t *testing.T) {
	app, _ := newGatewayApp(t)

	req := httptest.NewRequest("GET", "/api/v1/identity", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	payload, status := postJSON(t, app, "/api/v1/identity", dto.IdentitySetupRequest{Username: "movie fan"})
	require.Equal(t, fiber.StatusCreated, status)
	require.True(t, payload.Success)

	var created dto.IdentityResponse
	require.NoError(t, json.Unmarshal(payload.Data, &created))
	require.Equal(t, "movie fan", created.Username)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Avatar)

	req = httptest.NewRequest("GET", "/api/v1/identity", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestIdentityRejectsShortUsername(t *testing.T) {
	app, _ := newGatewayApp(t)

	_, status := postJSON(t, app, "/api/v1/identity", dto.IdentitySetupRequest{Username: "x"})
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoomLifecycle(t *testing.T) {
	app, rooms := newGatewayApp(t)

	payload, status := postJSON(t, app, "/api/v1/rooms/enter", dto.RoomEnterRequest{Name: "Movie Night"})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, payload.Success)

	var entered dto.RoomStatusResponse
	require.NoError(t, json.Unmarshal(payload.Data, &entered))
	require.Equal(t, "movie-night", entered.Slug)

	req := httptest.NewRequest("GET", "/api/v1/rooms/current", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()

	_, status = postJSON(t, app, "/api/v1/rooms/destroy", dto.RoomDestroyRequest{Passcode: "wrong"})
	require.Equal(t, fiber.StatusForbidden, status)
	require.False(t, rooms.destroyed)

	_, status = postJSON(t, app, "/api/v1/rooms/destroy", dto.RoomDestroyRequest{Passcode: "3021"})
	require.Equal(t, fiber.StatusOK, status)
	require.True(t, rooms.destroyed)
}

func TestDestroyWithoutRoomConflicts(t *testing.T) {
	app, _ := newGatewayApp(t)

	_, status := postJSON(t, app, "/api/v1/rooms/destroy", dto.RoomDestroyRequest{Passcode: "3021"})
	require.Equal(t, fiber.StatusConflict, status)
}

func TestVideoLookupContract(t *testing.T) {
	app, _ := newGatewayApp(t)

	payload, status := postJSON(t, app, "/api/v1/videos/lookup", dto.VideoLookupRequest{Link: "https://youtu.be/dQw4w9WgXcQ"})
	require.Equal(t, fiber.StatusOK, status)

	var info dto.VideoInfoResponse
	require.NoError(t, json.Unmarshal(payload.Data, &info))
	require.Equal(t, "Some Video", info.Title)

	_, status = postJSON(t, app, "/api/v1/videos/lookup", dto.VideoLookupRequest{Link: "not a link"})
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestChatUpgradeRequiresIdentity(t *testing.T) {
	app, _ := newGatewayApp(t)

	req := httptest.NewRequest("GET", "/api/v1/chat/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}
