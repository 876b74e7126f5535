// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/iris-bridge/pkg/callbacks"
)

const logPrefix = "config:LoadConfig"

// Backend names accepted by IRIS_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds iris-bridge configuration.
type Config struct {
	// COMMS: connect to NATS at COMMSURL, optionally started in-process.
	COMMSURL          string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName         string `envconfig:"SERVICE_NAME" default:"iris-bridge"`
	COMMSEmbedded     bool   `envconfig:"COMMS_EMBEDDED" default:"false"`
	COMMSEmbeddedPort int    `envconfig:"COMMS_EMBEDDED_PORT" default:"4222"`

	// Service identity and subjects (empty subject = derive from instance)
	Instance           string `envconfig:"IRIS_INSTANCE" default:"default"`
	ServiceSubject     string `envconfig:"IRIS_SUBJECT"`
	ChangeEventSubject string `envconfig:"IRIS_CHANGE_EVENT_SUBJECT" default:"iris.feature.changed"`

	// Timeouts
	RequestTimeout  time.Duration `envconfig:"IRIS_REQUEST_TIMEOUT" default:"5s"`
	CallbackTimeout time.Duration `envconfig:"IRIS_CALLBACK_TIMEOUT" default:"2s"`

	// Callbacks and backend
	CallbackMode string `envconfig:"IRIS_CALLBACK_MODE" default:"single"`
	Backend      string `envconfig:"IRIS_BACKEND" default:"memory"`
	ChipFeature  int32  `envconfig:"IRIS_CHIP_FEATURE" default:"1"`
	NotifyOnSet  bool   `envconfig:"IRIS_NOTIFY_ON_SET" default:"true"`

	// Seed
	SeedFile string `envconfig:"IRIS_SEED_FILE"`

	// Database (postgres backend and DB commands)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the Iris service.
func (c *Config) ValidateForServe() error {
	if c.Instance == "" {
		return fmt.Errorf("%s - IRIS_INSTANCE must not be empty", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - IRIS_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.CallbackTimeout <= 0 {
		return fmt.Errorf("%s - IRIS_CALLBACK_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if _, err := callbacks.ParseMode(c.CallbackMode); err != nil {
		return fmt.Errorf("%s - IRIS_CALLBACK_MODE: %w", logPrefix, err)
	}
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if err := c.ValidateForDB(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s - IRIS_BACKEND must be %q or %q, got %q", logPrefix, BackendMemory, BackendPostgres, c.Backend)
	}
	if c.COMMSEmbedded && (c.COMMSEmbeddedPort < 0 || c.COMMSEmbeddedPort > 65535) {
		return fmt.Errorf("%s - COMMS_EMBEDDED_PORT out of range: %d", logPrefix, c.COMMSEmbeddedPort)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
