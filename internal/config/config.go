// Package config provides centralized configuration management for Daffodil services.
// It uses envconfig for environment variable loading and validator for validation.
// An optional .env file in the working directory is loaded first (existing
// environment variables always win).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentDevelopment is the local development environment identifier
	EnvironmentDevelopment = "development"

	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// envPrefix is prepended to every variable name (DAFFODIL_DB_HOST, ...).
	envPrefix = "DAFFODIL"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Cache         CacheConfig         `envconfig:"CACHE"`
	Engine        EngineConfig        `envconfig:"ENGINE"`
	Dormancy      DormancyConfig      `envconfig:"DORMANCY"`
	Sweeper       SweeperConfig       `envconfig:"SWEEPER"`
	Consumer      ConsumerConfig      `envconfig:"CONSUMER"`
	Scheduler     SchedulerConfig     `envconfig:"SCHEDULER"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"daffodil"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Control ControlPlaneConfig `envconfig:"CONTROL"`
	Data    DataPlaneConfig    `envconfig:"DATA"`
}

// Load reads configuration from environment variables with the DAFFODIL prefix.
func Load() (*Config, error) {
	return LoadFiles()
}

// LoadFiles is Load with explicit .env file names. Missing files are ignored;
// a file that exists but cannot be parsed is an error.
func LoadFiles(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, statErr := os.Stat(f); statErr != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg := &Config{}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation on the loaded configuration using go-playground/validator.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	// Additional custom validation
	if err := c.Database.Validate(c.App.Environment); err != nil {
		return err
	}

	if err := c.Redis.Validate(c.App.Environment); err != nil {
		return err
	}

	if err := c.Server.Control.Validate(c.App.Environment); err != nil {
		return err
	}

	if err := c.Server.Data.Validate(); err != nil {
		return err
	}

	if err := c.Cache.Validate(c.App.Environment); err != nil {
		return err
	}

	if err := c.Dormancy.Validate(); err != nil {
		return err
	}

	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	return c.Observability.Validate()
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("control_port", c.Server.Control.Port),
		slog.String("data_port", c.Server.Data.Port),
		slog.Bool("tls_enabled", c.Server.Control.TLSEnabled),
		slog.String("cache_backend", c.Cache.Backend),
		slog.Duration("experiments_ttl", c.Cache.ExperimentsTTL),
		slog.Duration("mixture_ttl", c.Cache.MixtureTTL),
		slog.Duration("dormancy_horizon", c.Dormancy.Horizon),
		slog.Duration("sweep_interval", c.Sweeper.Interval),
		slog.String("consumer_group", c.Consumer.Group),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
	)
}

// Shared validation helper functions

// validatePort checks if port is valid (1-65535)
func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", context)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", context, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", context, portNum)
	}
	return nil
}

// validateHost checks if host is not empty and contains no whitespace
func validateHost(host, context string) error {
	if host == "" {
		return fmt.Errorf("%s host cannot be empty", context)
	}
	if strings.TrimSpace(host) != host {
		return fmt.Errorf("%s host cannot contain whitespace", context)
	}
	return nil
}

// validateNoWhitespace checks if a value is not empty and contains no whitespace
func validateNoWhitespace(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if strings.TrimSpace(value) != value {
		return fmt.Errorf("%s cannot contain whitespace", fieldName)
	}
	return nil
}

// validatePasswordStrength checks password meets minimum requirements
func validatePasswordStrength(password, context, environment string) error {
	if environment == EnvironmentProduction {
		if len(password) < 12 {
			return fmt.Errorf("%s password must be at least 12 characters in production", context)
		}
	}
	return nil
}

// isSecureSSLMode checks if SSL mode is production-safe
func isSecureSSLMode(mode string) bool {
	return mode == "require" || mode == "verify-ca" || mode == "verify-full"
}

// parseAndValidateURL is a helper for parsing URLs with scheme validation
func parseAndValidateURL(rawURL string, allowedSchemes []string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	// Validate scheme
	validScheme := slices.Contains(allowedSchemes, parsed.Scheme)
	if !validScheme {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, allowedSchemes)
	}

	// Validate host is present
	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}

	return parsed, nil
}
