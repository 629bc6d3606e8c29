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

// VideoHandler exposes the video metadata lookup endpoint.
type VideoHandler struct {
	service   service.VideoService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewVideoHandler creates a video handler instance.
func NewVideoHandler(service service.VideoService, validator *validator.Validate, logger zerolog.Logger) *VideoHandler {
	return &VideoHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "video_handler").Logger(),
	}
}

// Register binds video routes under the provided router group.
func (h *VideoHandler) Register(router fiber.Router) {
	router.Post("/lookup", h.lookup)
}

func (h *VideoHandler) lookup(c *fiber.Ctx) error {
	var req dto.VideoLookupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	info, err := h.service.Lookup(c.UserContext(), req.Link)
	if err != nil {
		if errors.Is(err, service.ErrVideoIDNotFound) {
			return utils.SendError(c, fiber.StatusUnprocessableEntity, "no video id found in link")
		}
		requestLogger(h.logger, c).Warn().Err(err).Msg("video lookup failed")
		return utils.SendError(c, fiber.StatusBadGateway, "video lookup failed")
	}

	return utils.SendSuccess(c, "video metadata", info)
}
