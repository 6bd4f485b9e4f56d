// Package config loads and validates document store configuration.
//
// Configuration comes from a YAML file checked against an embedded CUE
// schema, then from DOCSTORE_* environment variables and command-line
// flags through viper. Later sources win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/docstore/internal/retry"
)

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config is the complete store configuration.
type Config struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	Table           string        `yaml:"table" json:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	PageSize        int           `yaml:"page_size" json:"page_size"`
	JanitorInterval time.Duration `yaml:"janitor_interval" json:"janitor_interval"`
	Retry           RetryConfig   `yaml:"retry" json:"retry"`

	// EncryptionKey enables envelope encryption of document values.
	EncryptionKey string `yaml:"encryption_key" json:"-"`

	// HashFilters stores keyed digests of filter attributes instead of
	// cleartext. Requires EncryptionKey.
	HashFilters bool `yaml:"hash_filters" json:"hash_filters"`

	StrictDecode bool   `yaml:"strict_decode" json:"strict_decode"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
}

// RetryConfig mirrors retry.Policy in file form.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// Policy converts the retry section.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		BaseDelay:    r.BaseDelay,
		MaxDelay:     r.MaxDelay,
		JitterFactor: r.JitterFactor,
	}
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	p := retry.DefaultPolicy()
	return Config{
		Driver:          DriverMattn,
		DSN:             "docstore.db",
		Table:           "data",
		MaxOpenConns:    1,
		PageSize:        256,
		JanitorInterval: 60 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:  p.MaxAttempts,
			BaseDelay:    p.BaseDelay,
			MaxDelay:     p.MaxDelay,
			JitterFactor: p.JitterFactor,
		},
		LogLevel: "info",
	}
}

// Validate checks cross-field constraints the schema cannot express and
// guards configs built in code.
func (c Config) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverMattn, DriverModernc:
	default:
		errs = append(errs, fmt.Errorf("driver %q: must be %q or %q", c.Driver, DriverMattn, DriverModernc))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if !identifierPattern.MatchString(c.Table) {
		errs = append(errs, fmt.Errorf("table %q: not a plain identifier", c.Table))
	}
	if c.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("max_open_conns must be at least 1, got %d", c.MaxOpenConns))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page_size must be at least 1, got %d", c.PageSize))
	}
	if c.JanitorInterval <= 0 {
		errs = append(errs, fmt.Errorf("janitor_interval must be positive, got %s", c.JanitorInterval))
	}
	if err := c.Retry.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if c.HashFilters && c.EncryptionKey == "" {
		errs = append(errs, errors.New("hash_filters requires encryption_key"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q: must be debug, info, warn or error", s)
	}
}
