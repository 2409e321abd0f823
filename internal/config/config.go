package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// app config, loaded once at startup
type Config struct {
	Port             string
	RedisAddr        string
	BroadcastChannel string
	IdleTimeout      time.Duration
	SendQueueSize    int
	AllowedOrigins   []string

	// Gemini analysis is optional; with no API key the service falls
	// back to the built-in offline report.
	GeminiAPIKey string
	GeminiModel  string
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	idle, err := time.ParseDuration(getEnvOrDefault("WS_IDLE_TIMEOUT", "60s"))
	if err != nil {
		return nil, errors.New("invalid WS_IDLE_TIMEOUT: " + err.Error())
	}

	queueSize, err := strconv.Atoi(getEnvOrDefault("WS_SEND_QUEUE_SIZE", "256"))
	if err != nil {
		return nil, errors.New("invalid WS_SEND_QUEUE_SIZE: " + err.Error())
	}

	config := &Config{
		Port:             getEnvOrDefault("PORT", "8000"),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		BroadcastChannel: getEnvOrDefault("BROADCAST_CHANNEL", "flowsync:broadcast"),
		IdleTimeout:      idle,
		SendQueueSize:    queueSize,
		AllowedOrigins:   splitOrigins(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.IdleTimeout <= 0 {
		return errors.New("WS_IDLE_TIMEOUT must be positive")
	}
	if config.SendQueueSize <= 0 {
		return errors.New("WS_SEND_QUEUE_SIZE must be positive")
	}
	if config.RedisAddr == "" {
		return errors.New("REDIS_ADDR must not be empty")
	}
	return nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
