package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel         OTelConfig
	Redis        RedisConfig
	Collab       CollabConfig
	Env          string
	Port         string
	DashboardURL string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

type RedisConfig struct {
	URL string
}

// CollabConfig holds the tunables of the real-time collaboration protocol.
type CollabConfig struct {
	// HeartbeatInterval is the period between heartbeat frames while connected.
	HeartbeatInterval time.Duration
	// LockTTL is how long a node lock stays live without renewal.
	LockTTL time.Duration
	// ActivityWindow is how long after their last event a participant
	// still counts as active.
	ActivityWindow time.Duration
	// ReconnectBase is the first reconnect delay; each retry doubles it.
	ReconnectBase time.Duration
	// MaxReconnects caps automatic reconnection attempts before the
	// channel gives up for good.
	MaxReconnects int
	// SessionIdleTimeout is how long the hub keeps a session alive after
	// its last participant disconnects.
	SessionIdleTimeout time.Duration
}

// Load loads configuration from environment variables.
// In development it first loads .env if present.
func Load() (Config, error) {
	if getEnv("COLLAB_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:          getEnv("COLLAB_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		DashboardURL: getEnv("DASHBOARD_URL", "http://localhost:3000"),
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "collabd"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("COLLAB_ENV", "development"),
		},
		Collab: CollabConfig{
			HeartbeatInterval:  getEnvDuration("COLLAB_HEARTBEAT_INTERVAL", 30*time.Second),
			LockTTL:            getEnvDuration("COLLAB_LOCK_TTL", 30*time.Second),
			ActivityWindow:     getEnvDuration("COLLAB_ACTIVITY_WINDOW", 60*time.Second),
			ReconnectBase:      getEnvDuration("COLLAB_RECONNECT_BASE", 2*time.Second),
			MaxReconnects:      getEnvInt("COLLAB_MAX_RECONNECTS", 5),
			SessionIdleTimeout: getEnvDuration("COLLAB_SESSION_IDLE_TIMEOUT", 5*time.Minute),
		},
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
