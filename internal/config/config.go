// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Persistence
	DBPath           string
	EncryptionSecret string

	// Access gate
	AppPassword   string
	JWTExpiration time.Duration

	// Upstream settings
	Mode            string // "auto", "local" or "cloud"
	LocalOllamaURL  string
	CloudOllamaURL  string
	OllamaAPIKey    string
	UpstreamTimeout time.Duration
	ModelsCachePath string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:        getEnv("PORT", "3000"),
		ServerReadTimeout: getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		// Relay responses stream for as long as the model generates.
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// Persistence
		DBPath:           getEnv("DB_PATH", "data/chats.db"),
		EncryptionSecret: getEnv("ENCRYPTION_SECRET", ""),

		// Access gate
		AppPassword:   getEnv("APP_PASSWORD", ""),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 12*time.Hour),

		// Upstream
		Mode:           getEnv("MODE", "auto"),
		LocalOllamaURL: getEnv("LOCAL_OLLAMA_URL", "http://localhost:11434"),
		CloudOllamaURL: getEnv("CLOUD_OLLAMA_URL", "https://ollama.com/api"),
		OllamaAPIKey:   getEnv("OLLAMA_API_KEY", ""),
		// Zero keeps the origin behavior of unbounded generation time.
		UpstreamTimeout: getDurationEnv("UPSTREAM_TIMEOUT", 0),
		ModelsCachePath: getEnv("MODELS_CACHE_PATH", "models_cache.json"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
