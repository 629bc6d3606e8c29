package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/dto"
	"github.com/dittotube/watchparty/internal/service"
	"github.com/dittotube/watchparty/internal/utils"
)

// RoomHandler exposes the room lifecycle endpoints.
type RoomHandler struct {
	service   service.RoomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRoomHandler creates a room handler instance.
func NewRoomHandler(service service.RoomService, validator *validator.Validate, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "room_handler").Logger(),
	}
}

// Register binds room routes under the provided router group.
func (h *RoomHandler) Register(router fiber.Router) {
	router.Post("/enter", h.enter)
	router.Post("/leave", h.leave)
	router.Post("/destroy", h.destroy)
	router.Get("/current", h.current)
}

func (h *RoomHandler) enter(c *fiber.Ctx) error {
	var req dto.RoomEnterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	slug, err := h.service.EnterRoom(c.UserContext(), req.Name)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoomName) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Str("room", req.Name).Msg("failed to enter room")
		return utils.SendError(c, fiber.StatusBadGateway, "failed to enter room")
	}

	return utils.SendSuccess(c, "room joined", dto.RoomStatusResponse{Slug: slug, Status: "connecting"})
}

func (h *RoomHandler) leave(c *fiber.Ctx) error {
	if err := h.service.LeaveRoom(c.UserContext()); err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to leave room")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to leave room")
	}

	return utils.SendSuccess(c, "room left", nil)
}

func (h *RoomHandler) destroy(c *fiber.Ctx) error {
	var req dto.RoomDestroyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DestroyRoom(c.UserContext(), req.Passcode); err != nil {
		switch {
		case errors.Is(err, service.ErrBadPasscode):
			return utils.SendError(c, fiber.StatusForbidden, "incorrect passcode")
		case errors.Is(err, service.ErrNoActiveRoom):
			return utils.SendError(c, fiber.StatusConflict, "no active room to destroy")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("room destruction failed")
			return utils.SendError(c, fiber.StatusBadGateway, "room destruction failed, try again")
		}
	}

	return utils.SendSuccess(c, "room destroyed", nil)
}

func (h *RoomHandler) current(c *fiber.Ctx) error {
	snapshot, err := h.service.Snapshot(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to read room snapshot")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to read room state")
	}

	return utils.SendSuccess(c, "room status", dto.RoomStatusResponse{
		Slug:      snapshot.Slug,
		Status:    snapshot.Status,
		Destroyed: snapshot.Destroyed,
		Messages:  len(snapshot.Messages),
	})
}
