package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends for live tables.
const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the server configuration, read from the environment.
type Config struct {
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	Store       string        `env:"STORE" envDefault:"redis"`
	RedisAddr   string        `env:"REDIS_CONNSTRING" envDefault:"localhost:6379"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"./tables.db"`
	TableTTL    time.Duration `env:"TABLE_TTL" envDefault:"2h"`
	TokenSecret string        `env:"TOKEN_SECRET" envDefault:"my_super_secret_key"`
	LogLevel    slog.Level    `env:"LOG_LEVEL" envDefault:"debug"`
	Telemetry   Telemetry     `envPrefix:"OTEL_"`
}

// Telemetry configures the OpenTelemetry exporters. An empty collector
// endpoint disables OTLP export.
type Telemetry struct {
	CollectorEndpoint string `env:"COLLECTOR_ENDPOINT"`
	Stdout            bool   `env:"STDOUT" envDefault:"false"`
	ServiceName       string `env:"SERVICE_NAME" envDefault:"tic-tac-toe"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Store != StoreRedis && cfg.Store != StoreSQLite {
		return nil, fmt.Errorf("unknown STORE %q, want %q or %q", cfg.Store, StoreRedis, StoreSQLite)
	}
	if cfg.TableTTL <= 0 {
		return nil, fmt.Errorf("TABLE_TTL must be positive, got %s", cfg.TableTTL)
	}
	return cfg, nil
}
