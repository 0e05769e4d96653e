// Package config loads the server configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported metadata backends
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds all settings of the file sharing server
type Config struct {
	Addr            string        `env:"FILES_ADDR" envDefault:":8080"`
	DataDir         string        `env:"FILES_DATA_DIR" envDefault:"uploads"`
	DBDriver        string        `env:"FILES_DB_DRIVER" envDefault:"sqlite"`
	DBPath          string        `env:"FILES_DB_PATH" envDefault:"myshare.db"`
	MongoURI        string        `env:"FILES_MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase   string        `env:"FILES_MONGO_DATABASE" envDefault:"myshare"`
	Retention       time.Duration `env:"FILES_RETENTION" envDefault:"168h"`
	SweepInterval   time.Duration `env:"FILES_SWEEP_INTERVAL" envDefault:"1m"`
	MaxSize         int64         `env:"FILES_MAX_SIZE" envDefault:"0"`
	PublicURL       string        `env:"FILES_PUBLIC_URL"`
	CORSOrigin      string        `env:"FILES_CORS_ORIGIN" envDefault:"*"`
	NATSURL         string        `env:"FILES_NATS_URL"`
	LogLevel        string        `env:"FILES_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"FILES_LOG_FORMAT" envDefault:"json"`
	LogFile         string        `env:"FILES_LOG_FILE"`
	ShutdownTimeout time.Duration `env:"FILES_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("FILES_DB_DRIVER: unsupported value %q, expected sqlite or mongo", c.DBDriver)
	}

	if c.DataDir == "" {
		return fmt.Errorf("FILES_DATA_DIR: must not be empty")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("FILES_RETENTION: must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("FILES_SWEEP_INTERVAL: must be positive")
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("FILES_MAX_SIZE: must not be negative")
	}

	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("FILES_PUBLIC_URL: %q is not an absolute URL", c.PublicURL)
		}
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("FILES_LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("FILES_LOG_FORMAT: unsupported value %q, expected json or text", c.LogFormat)
	}

	if c.DBDriver == DriverSQLite {
		if c.DBPath == "" {
			return fmt.Errorf("FILES_DB_PATH: must not be empty")
		}
		// The sweeper deletes old files in the data directory.
		inside, err := within(c.DataDir, c.DBPath)
		if err != nil {
			return fmt.Errorf("FILES_DB_PATH: %w", err)
		}
		if inside {
			return fmt.Errorf("FILES_DB_PATH: %q must not be inside FILES_DATA_DIR", c.DBPath)
		}
	}

	// Rotated backups sit next to the log file.
	if c.LogFile != "" {
		inside, err := within(c.DataDir, c.LogFile)
		if err != nil {
			return fmt.Errorf("FILES_LOG_FILE: %w", err)
		}
		if inside {
			return fmt.Errorf("FILES_LOG_FILE: %q must not be inside FILES_DATA_DIR", c.LogFile)
		}
	}

	return nil
}

// ParseLogLevel maps a level name to a slog.Level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q, expected debug, info, warn or error", level)
	}
}

// within reports whether path lies inside dir. In-memory and URI style
// sqlite paths are never inside.
func within(dir, path string) (bool, error) {
	if strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return false, nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false, nil
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}
