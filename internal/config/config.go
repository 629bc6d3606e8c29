package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the gateway.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	BrokerURL      string
	TopicPrefix    string
	RoomPasscode   string
	RedisURL       string
	OEmbedEndpoint string
	VideoCacheTTL  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WATCHPARTY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Watchparty Gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("broker.url", "wss://broker.hivemq.com:8884/mqtt")
	v.SetDefault("broker.topic_prefix", "dittotube/chat")
	v.SetDefault("room.passcode", "3021")
	v.SetDefault("video.oembed_endpoint", "https://noembed.com/embed")
	v.SetDefault("video.cache_ttl", "10m")

	ttlString := v.GetString("video.cache_ttl")
	if ttlString == "" {
		ttlString = "10m"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid video cache ttl: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		BrokerURL:      v.GetString("broker.url"),
		TopicPrefix:    strings.TrimSuffix(v.GetString("broker.topic_prefix"), "/"),
		RoomPasscode:   v.GetString("room.passcode"),
		RedisURL:       v.GetString("redis.url"),
		OEmbedEndpoint: v.GetString("video.oembed_endpoint"),
		VideoCacheTTL:  ttl,
	}

	if cfg.BrokerURL == "" {
		return Config{}, fmt.Errorf("broker url must be provided")
	}

	return cfg, nil
}
