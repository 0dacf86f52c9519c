// Package config loads the service configuration from the environment.
//
// Values come from the process environment, then an optional .env file in
// the working directory, then the defaults in the struct tags. The result is
// validated once at startup and is not modified afterwards.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"metar_parser/internal/storage"
)

// Config is the top-level configuration for the metar service.
type Config struct {
	Environment     string        `envconfig:"APP_ENV" default:"dev" validate:"required,oneof=dev prod"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`

	HTTP       HTTPConfig
	NATS       NATSConfig
	SQLite     SQLiteConfig
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr       string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	APIKey     string `envconfig:"API_KEY"` // Comma-separated keys. Empty disables authentication.
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`
}

// NATSConfig holds the feed subscription settings.
type NATSConfig struct {
	Enabled       bool   `envconfig:"NATS_ENABLED" default:"true"`
	URL           string `envconfig:"NATS_URL" default:"nats://localhost:4222" validate:"required_if=Enabled true"`
	Subject       string `envconfig:"NATS_SUBJECT" default:"metar.raw" validate:"required_if=Enabled true"`
	Queue         string `envconfig:"NATS_QUEUE" default:"metar-parser"`
	OutputSubject string `envconfig:"NATS_OUTPUT_SUBJECT" default:"metar.decoded"` // Empty disables publishing.
}

// SQLiteConfig holds the local archive settings.
type SQLiteConfig struct {
	Path string `envconfig:"SQLITE_PATH"` // Empty disables the archive.
}

// ClickHouseConfig holds the report history settings.
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000" validate:"min=1,max=65535"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"metar"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
}

// PostgresConfig holds the current conditions settings.
type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432" validate:"min=1,max=65535"`
	Database string `envconfig:"POSTGRES_DB" default:"metar_state"`
	User     string `envconfig:"POSTGRES_USER" default:"metar"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"metar"`
}

// Load reads .env (if present) and the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	// A missing .env file is not an error; existing variables are not overridden.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Storage returns the database connection settings.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		ClickHouse: storage.ClickHouseConfig{
			Host:     c.ClickHouse.Host,
			Port:     c.ClickHouse.Port,
			Database: c.ClickHouse.Database,
			User:     c.ClickHouse.User,
			Password: c.ClickHouse.Password,
		},
		Postgres: storage.PostgresConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
		},
	}
}
