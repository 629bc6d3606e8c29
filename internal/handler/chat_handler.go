package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/models"
	"github.com/dittotube/watchparty/internal/service"
)

// ChatHandler wires the websocket endpoint UI clients use to observe
// the room document and submit mutations.
type ChatHandler struct {
	rooms    service.RoomService
	identity service.IdentityService
	logger   zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(rooms service.RoomService, identity service.IdentityService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		rooms:    rooms,
		identity: identity,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		user, err := h.identity.Current(c.UserContext())
		if err != nil {
			if errors.Is(err, service.ErrIdentityNotSet) {
				return fiber.NewError(fiber.StatusForbidden, "set up an identity before connecting")
			}
			return err
		}

		c.Locals("session_user", user)
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	user, ok := conn.Locals("session_user").(models.User)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session identity missing"))
		_ = conn.Close()
		return
	}

	h.logger.Info().Str("user_id", user.ID).Msg("chat websocket connected")
	h.rooms.ServeConnection(conn, user)
	h.logger.Info().Str("user_id", user.ID).Msg("chat websocket disconnected")
}
