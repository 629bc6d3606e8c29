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

// IdentityHandler exposes the session identity endpoints.
type IdentityHandler struct {
	service   service.IdentityService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewIdentityHandler creates an identity handler instance.
func NewIdentityHandler(service service.IdentityService, validator *validator.Validate, logger zerolog.Logger) *IdentityHandler {
	return &IdentityHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "identity_handler").Logger(),
	}
}

// Register binds identity routes under the provided router group.
func (h *IdentityHandler) Register(router fiber.Router) {
	router.Post("/", h.setup)
	router.Get("/", h.current)
}

func (h *IdentityHandler) setup(c *fiber.Ctx) error {
	var req dto.IdentitySetupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	user, err := h.service.Setup(c.UserContext(), req.Username)
	if err != nil {
		if errors.Is(err, service.ErrUsernameEmpty) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to set up identity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to set up identity")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "identity created", dto.NewIdentityResponse(user))
}

func (h *IdentityHandler) current(c *fiber.Ctx) error {
	user, err := h.service.Current(c.UserContext())
	if err != nil {
		if errors.Is(err, service.ErrIdentityNotSet) {
			return utils.SendError(c, fiber.StatusNotFound, "no session identity")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to read identity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to read identity")
	}

	return utils.SendSuccess(c, "session identity", dto.NewIdentityResponse(user))
}
