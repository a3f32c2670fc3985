package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Database DatabaseConfig `yaml:"database" envconfig:"DATABASE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// SecurityConfig contains license signing and admin credentials
type SecurityConfig struct {
	// LicenseSecret is the passphrase the HMAC signing key is derived from.
	// Verify and AdminGenerate must share it or no issued token validates.
	LicenseSecret string `yaml:"license_secret" envconfig:"LICENSE_SECRET"`

	// AdminKey is the shared secret expected in the X-Admin-Key header on
	// admin routes. It is distinct from LicenseSecret on purpose.
	AdminKey string `yaml:"admin_key" envconfig:"ADMIN_KEY"`

	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"10"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"20"`
}

// DatabaseConfig contains persistence configuration. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"DSN"`
	MaxConns        int32         `yaml:"max_conns" envconfig:"MAX_CONNS" default:"10"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" default:"5s"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" envconfig:"MAX_CONN_LIFETIME" default:"1h"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("EXAMGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := configFilePath()
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// configFilePath returns the config file location, overridable for tests
// and packaging via EXAMGATE_CONFIG_FILE.
func configFilePath() string {
	if p := os.Getenv("EXAMGATE_CONFIG_FILE"); p != "" {
		return p
	}
	return "examgate.yaml"
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// merge merges file config under env config; env (already processed into
// envCfg) wins wherever it set a non-zero value.
func merge(fileCfg, envCfg Config) Config {
	out := envCfg

	if out.Security.LicenseSecret == "" {
		out.Security.LicenseSecret = fileCfg.Security.LicenseSecret
	}
	if out.Security.AdminKey == "" {
		out.Security.AdminKey = fileCfg.Security.AdminKey
	}
	if out.Database.DSN == "" {
		out.Database.DSN = fileCfg.Database.DSN
	}
	if fileCfg.Server.Port != 0 && os.Getenv("EXAMGATE_SERVER_PORT") == "" {
		out.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Logging.Level != "" && os.Getenv("EXAMGATE_LOGGING_LEVEL") == "" {
		out.Logging.Level = fileCfg.Logging.Level
	}
	if fileCfg.Security.RateLimit.RPS != 0 && os.Getenv("EXAMGATE_SECURITY_RATE_LIMIT_RPS") == "" {
		out.Security.RateLimit = fileCfg.Security.RateLimit
	}

	return out
}

// validate checks that the configuration is usable
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Security.LicenseSecret == "" {
		return fmt.Errorf("security.license_secret is required")
	}
	if c.Security.AdminKey == "" {
		return fmt.Errorf("security.admin_key is required")
	}
	if c.Security.AdminKey == c.Security.LicenseSecret {
		return fmt.Errorf("security.admin_key must differ from security.license_secret")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	return nil
}
