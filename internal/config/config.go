// Package config loads runtime settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds settings for both the message service and the chat client.
type Config struct {
	Env  string
	Port string

	// Message service
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string

	// Chat client
	ServerURL   string
	Token       string
	Participant string

	// Telegram alerts
	TelegramToken  string
	TelegramChatID int64
	Language       string
	LocalesDir     string
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseDSN:   getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=garagechat port=5432 sslmode=disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerURL:     getEnv("SERVER_URL", "http://localhost:8080"),
		Token:         os.Getenv("CHAT_TOKEN"),
		Participant:   os.Getenv("CHAT_PARTICIPANT"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Language:      getEnv("LANGUAGE", "en"),
		LocalesDir:    getEnv("LOCALES_DIR", "internal/localization/locales"),
	}

	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}
	return cfg, nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ValidateServer checks the settings the message service cannot run without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	return nil
}

// TelegramEnabled reports whether alerts should be mirrored to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Logger returns the process logger: JSON in production, console output
// otherwise.
func (c *Config) Logger() zerolog.Logger {
	if c.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}
