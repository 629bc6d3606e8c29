package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dittotube/watchparty/internal/config"
	"github.com/dittotube/watchparty/internal/handler"
	"github.com/dittotube/watchparty/internal/middleware"
	"github.com/dittotube/watchparty/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	IdentityHandler *handler.IdentityHandler
	RoomHandler     *handler.RoomHandler
	VideoHandler    *handler.VideoHandler
	ChatHandler     *handler.ChatHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/healthz", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	if deps.IdentityHandler != nil {
		deps.IdentityHandler.Register(api.Group("/identity"))
	}

	if deps.RoomHandler != nil {
		rooms := api.Group("/rooms")
		// Destruction is irreversible for everyone in the room, keep
		// guessing attempts slow.
		rooms.Use("/destroy", middleware.RateLimit("room_destroy", 5, time.Minute))
		deps.RoomHandler.Register(rooms)
	}

	if deps.VideoHandler != nil {
		videos := api.Group("/videos", middleware.RateLimit("video_lookup", 30, time.Minute))
		deps.VideoHandler.Register(videos)
	}

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(api.Group("/chat"))
	}
}
