package relationaldb

import (
	"fmt"
	"time"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings for one pool.
type Config struct {
	// Driver selects the backend: "postgres" in production, "sqlite" for
	// development and tests.
	Driver string

	// PostgreSQL connection settings.
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string

	// SQLite path (or ":memory:" / file: URI). Ignored for postgres.
	Path string

	// Connection pool tuning.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// DefaultTimeout bounds every database round-trip.
	DefaultTimeout time.Duration
}

// DefaultConfig returns a postgres config with the pool tuning used in
// production.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverPostgres,
		Host:            "127.0.0.1",
		Port:            5432,
		Username:        "postgres",
		Database:        "beancounter",
		SSLMode:         "disable",
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		DefaultTimeout:  10 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.Host == "" {
			return ErrMissingHost
		}
		if c.Database == "" {
			return ErrMissingDatabase
		}
		if c.Username == "" {
			return ErrMissingUsername
		}
		if c.Port <= 0 || c.Port > 65535 {
			return ErrInvalidPort
		}
	case DriverSQLite:
		if c.Path == "" {
			return ErrMissingDatabase
		}
	default:
		return ErrInvalidDriver
	}

	if c.MaxOpenConns < 0 {
		return ErrInvalidMaxOpenConns
	}
	if c.MaxIdleConns < 0 {
		return ErrInvalidMaxIdleConns
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return ErrMaxIdleExceedsMaxOpen
	}
	if c.DefaultTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// BuildDSN builds the driver-specific connection string.
func (c *Config) BuildDSN() (string, error) {
	switch c.Driver {
	case DriverPostgres:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.Database, sslMode,
		), nil
	case DriverSQLite:
		return c.Path, nil
	default:
		return "", ErrInvalidDriver
	}
}
