// Package config holds the service configuration, loaded from defaults, an
// optional TOML file and BEANCOUNTER_-prefixed environment variables.
package config

import (
	"time"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Config represents the complete beancounterd configuration.
type Config struct {
	// Service section: the RPC listener.
	Service ServiceConfig `toml:"service" mapstructure:"service"`

	// Metrics section: the Prometheus scrape listener.
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`

	// Database section: reader and writer pools. The writer handles all
	// ledger mutations; the reader may point at a replica.
	Database DatabaseConfig `toml:"database" mapstructure:"database"`

	// Stripe section: provider credentials.
	Stripe StripeConfig `toml:"stripe" mapstructure:"stripe"`

	// Fees section.
	Fees FeesConfig `toml:"fees" mapstructure:"fees"`

	// RAL section: sample window for the read-at-level estimate.
	RAL RALConfig `toml:"ral" mapstructure:"ral"`

	// Sweeps section: periodic maintenance.
	Sweeps SweepsConfig `toml:"sweeps" mapstructure:"sweeps"`

	// Logging section.
	Logging LoggingConfig `toml:"logging" mapstructure:"logging"`

	configPath string `toml:"-" mapstructure:"-"`
}

// ServiceConfig configures the RPC listener.
type ServiceConfig struct {
	Host string `toml:"host" mapstructure:"host"`
	Port int    `toml:"port" mapstructure:"port"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	Host string `toml:"host" mapstructure:"host"`
	Port int    `toml:"port" mapstructure:"port"`
}

// DatabaseConfig holds the reader and writer pools.
type DatabaseConfig struct {
	Reader DatabaseEndpoint `toml:"reader" mapstructure:"reader"`
	Writer DatabaseEndpoint `toml:"writer" mapstructure:"writer"`
}

// DatabaseEndpoint configures one connection pool.
type DatabaseEndpoint struct {
	Driver          string        `toml:"driver" mapstructure:"driver"`
	Host            string        `toml:"host" mapstructure:"host"`
	Port            int           `toml:"port" mapstructure:"port"`
	Username        string        `toml:"username" mapstructure:"username"`
	Password        string        `toml:"password" mapstructure:"password"`
	Database        string        `toml:"database" mapstructure:"database"`
	SSLMode         string        `toml:"sslmode" mapstructure:"sslmode"`
	Path            string        `toml:"path" mapstructure:"path"`
	MaxOpenConns    int           `toml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// StoreConfig converts the endpoint into the storage layer's configuration.
func (e DatabaseEndpoint) StoreConfig() *relationaldb.Config {
	cfg := relationaldb.DefaultConfig()
	if e.Driver != "" {
		cfg.Driver = e.Driver
	}
	if e.Host != "" {
		cfg.Host = e.Host
	}
	if e.Port != 0 {
		cfg.Port = e.Port
	}
	if e.Username != "" {
		cfg.Username = e.Username
	}
	if e.Password != "" {
		cfg.Password = e.Password
	}
	if e.Database != "" {
		cfg.Database = e.Database
	}
	if e.SSLMode != "" {
		cfg.SSLMode = e.SSLMode
	}
	if e.Path != "" {
		cfg.Path = e.Path
	}
	if e.MaxOpenConns != 0 {
		cfg.MaxOpenConns = e.MaxOpenConns
	}
	if e.MaxIdleConns != 0 {
		cfg.MaxIdleConns = e.MaxIdleConns
	}
	if e.ConnMaxLifetime != 0 {
		cfg.ConnMaxLifetime = e.ConnMaxLifetime
	}
	return cfg
}

// StripeConfig holds the provider credentials and OAuth settings.
type StripeConfig struct {
	SecretKey     string `toml:"secret_key" mapstructure:"secret_key"`
	OauthClientID string `toml:"oauth_client_id" mapstructure:"oauth_client_id"`

	// OauthSecret overrides the secret key in the connect token exchange.
	// Empty means the provider derives it from the API key.
	OauthSecret string `toml:"oauth_secret" mapstructure:"oauth_secret"`

	// OauthRedirectURI is sent on the authorize URL; it must match one of
	// the redirect URIs registered with the provider. Empty means the
	// provider uses the registered default.
	OauthRedirectURI string `toml:"oauth_redirect_uri" mapstructure:"oauth_redirect_uri"`
}

// FeesConfig holds the fee policy.
type FeesConfig struct {
	// Rate is the platform's cut of real-money settlements.
	Rate float64 `toml:"rate" mapstructure:"rate"`
}

// RALConfig holds the read-at-level sample window.
type RALConfig struct {
	Window     int `toml:"window" mapstructure:"window"`
	MinSamples int `toml:"min_samples" mapstructure:"min_samples"`
}

// SweepsConfig holds the periodic maintenance settings.
type SweepsConfig struct {
	// Interval between sweep passes.
	Interval time.Duration `toml:"interval" mapstructure:"interval"`

	// PaymentExpiry is how long a held payment may sit unread before it is
	// refunded to the sender.
	PaymentExpiry time.Duration `toml:"payment_expiry" mapstructure:"payment_expiry"`

	// TransferBackoff is the minimum spacing between automatic payouts to
	// the same client.
	TransferBackoff time.Duration `toml:"transfer_backoff" mapstructure:"transfer_backoff"`
}

// LoggingConfig holds the log settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" mapstructure:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `toml:"development" mapstructure:"development"`
}

// GetConfigPath returns the path of the loaded configuration file, if any.
func (c *Config) GetConfigPath() string {
	return c.configPath
}
