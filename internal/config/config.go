package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Aggregate write modes
const (
	WriteModeOverwrite  = "overwrite"
	WriteModeOptimistic = "optimistic"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Match Settings
	RequiredPlayers      int
	DefaultStartingScore int

	// Aggregate cache
	AggregateTTLHours   int
	AggregateWriteMode  string
	AggregateMaxRetries int

	// Push
	PushTimeoutSeconds int
	WSRelayEnabled     bool

	// Meeting service
	MeetingServiceBaseURL string
	MeetingServiceOrgID   string
	MeetingServiceAPIKey  string

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/flyingdarts?sslmode=disable"),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:4200"),

		// Match Settings
		RequiredPlayers:      getEnvInt("REQUIRED_PLAYERS", 2),
		DefaultStartingScore: getEnvInt("DEFAULT_STARTING_SCORE", 501),

		// Aggregate cache
		AggregateTTLHours:   getEnvInt("AGGREGATE_TTL_HOURS", 24),
		AggregateWriteMode:  strings.ToLower(getEnv("AGGREGATE_WRITE_MODE", WriteModeOverwrite)),
		AggregateMaxRetries: getEnvInt("AGGREGATE_MAX_RETRIES", 3),

		// Push
		PushTimeoutSeconds: getEnvInt("PUSH_TIMEOUT_SECONDS", 5),
		WSRelayEnabled:     getEnvBool("WS_RELAY_ENABLED", false),

		// Meeting service
		MeetingServiceBaseURL: getEnv("MEETING_SERVICE_BASE_URL", ""),
		MeetingServiceOrgID:   getEnv("MEETING_SERVICE_ORG_ID", ""),
		MeetingServiceAPIKey:  getEnv("MEETING_SERVICE_API_KEY", ""),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}

	if cfg.AggregateWriteMode != WriteModeOptimistic {
		cfg.AggregateWriteMode = WriteModeOverwrite
	}
	if cfg.RequiredPlayers < 1 {
		cfg.RequiredPlayers = 2
	}
	if cfg.AggregateMaxRetries < 1 {
		cfg.AggregateMaxRetries = 1
	}
	return cfg
}

// AggregateTTL is how long a match snapshot lives in the cache
func (c *Config) AggregateTTL() time.Duration {
	return time.Duration(c.AggregateTTLHours) * time.Hour
}

// PushTimeout bounds a single push to a connection
func (c *Config) PushTimeout() time.Duration {
	return time.Duration(c.PushTimeoutSeconds) * time.Second
}

// Optimistic reports whether snapshot writes are version checked
func (c *Config) Optimistic() bool {
	return c.AggregateWriteMode == WriteModeOptimistic
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
