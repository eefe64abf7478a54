package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `yaml:"host" env:"DB_HOST"`
	Port               string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User               string `yaml:"user" env:"DB_USER"`
	Password           string `yaml:"-" env:"DB_PASSWORD"`
	Name               string `yaml:"name" env:"DB_NAME"`
	SSLMode            string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	MaxOpenConns       int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns       int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec" env:"DB_CONN_MAX_LIFETIME_SEC" env-default:"300"`

	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// MinIOConfig holds object storage settings used by roster exports.
// Leaving Endpoint empty disables exports.
type MinIOConfig struct {
	Endpoint   string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey  string `yaml:"-" env:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"-" env:"MINIO_SECRET_KEY"`
	Bucket     string `yaml:"bucket" env:"MINIO_BUCKET"`
	UseSSL     bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
	LinkTTLSec int    `yaml:"link_ttl_sec" env:"EXPORT_LINK_TTL_SEC" env-default:"900"`
}

// Enabled reports whether an object store endpoint was configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// LinkTTL is the lifetime of presigned export links.
func (c MinIOConfig) LinkTTL() time.Duration {
	return time.Duration(c.LinkTTLSec) * time.Second
}

// AppConfig is the centralized configuration struct for the application.
// Secrets are only read from the environment, never from the YAML file.
type AppConfig struct {
	Port               string `yaml:"port" env:"PORT" env-default:"8080"`
	Timezone           string `yaml:"timezone" env:"APP_TIMEZONE" env-default:"UTC"`
	LogLevel           string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	BodyLimitBytes     int    `yaml:"body_limit_bytes" env:"BODY_LIMIT_BYTES" env-default:"4194304"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec" env:"SHUTDOWN_TIMEOUT_SEC" env-default:"10"`

	Database DatabaseConfig `yaml:"database"`
	MinIO    MinIOConfig    `yaml:"minio"`
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShutdownTimeout is the graceful shutdown budget.
func (c *AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Load reads configuration from environment variables.
// If CONFIG_PATH points to a YAML file it is read first and environment
// variables override its values. A .env file can be auto-loaded by importing
// _ "github.com/joho/godotenv/autoload".
func Load() (*AppConfig, error) {
	var cfg AppConfig

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}
