package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/broker"
	"github.com/dittotube/watchparty/internal/config"
	"github.com/dittotube/watchparty/internal/database"
	"github.com/dittotube/watchparty/internal/handler"
	"github.com/dittotube/watchparty/internal/middleware"
	"github.com/dittotube/watchparty/internal/router"
	"github.com/dittotube/watchparty/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// The video metadata cache is optional; without Redis every lookup
	// goes to the oEmbed endpoint.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	channel := broker.New(cfg.BrokerURL, logger)

	roomService := service.NewRoomService(channel, cfg.TopicPrefix, cfg.RoomPasscode, validate, logger)
	identityService := service.NewIdentityService(logger)
	videoService := service.NewVideoService(cfg.OEmbedEndpoint, redisClient, cfg.VideoCacheTTL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	roomService.Start(ctx)

	identityHandler := handler.NewIdentityHandler(identityService, validate, logger)
	roomHandler := handler.NewRoomHandler(roomService, validate, logger)
	videoHandler := handler.NewVideoHandler(videoService, validate, logger)
	chatHandler := handler.NewChatHandler(roomService, identityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		IdentityHandler: identityHandler,
		RoomHandler:     roomHandler,
		VideoHandler:    videoHandler,
		ChatHandler:     chatHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancel)
}

func waitForShutdown(app *fiber.App, stopLoop context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
