package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{Host: DefaultServiceHost, Port: DefaultServicePort},
		Metrics: MetricsConfig{Host: DefaultMetricsHost, Port: DefaultMetricsPort},
		Database: DatabaseConfig{
			Reader: DatabaseEndpoint{Driver: "postgres", Host: "localhost", Database: "beancounter"},
			Writer: DatabaseEndpoint{Driver: "postgres", Host: "localhost", Database: "beancounter"},
		},
		Fees:   FeesConfig{Rate: DefaultFeeRate},
		RAL:    RALConfig{Window: DefaultRALWindow, MinSamples: DefaultRALMinSamples},
		Sweeps: SweepsConfig{Interval: DefaultSweepInterval, PaymentExpiry: DefaultPaymentExpiry, TransferBackoff: DefaultTransferBackoff},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, DefaultServicePort, cfg.Service.Port)
	require.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	require.Equal(t, "postgres", cfg.Database.Writer.Driver)
	require.Equal(t, DefaultFeeRate, cfg.Fees.Rate)
	require.Equal(t, DefaultRALWindow, cfg.RAL.Window)
	require.Equal(t, DefaultSweepInterval, cfg.Sweeps.Interval)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Empty(t, cfg.GetConfigPath(), "no file loaded")
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beancounterd.toml")
	content := `
[service]
port = 9000

[database.writer]
driver = "sqlite"
path = "/tmp/beancounter.db"

[database.reader]
driver = "sqlite"
path = "/tmp/beancounter.db"

[stripe]
secret_key = "sk_test_123"
oauth_client_id = "ca_test"
oauth_secret = "sk_connect_456"
oauth_redirect_uri = "https://app.example.com/connect/return"

[fees]
rate = 0.05

[sweeps]
interval = "5m"

[logging]
level = "debug"
development = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, path, cfg.GetConfigPath())
	require.Equal(t, 9000, cfg.Service.Port)
	require.Equal(t, "sqlite", cfg.Database.Writer.Driver)
	require.Equal(t, "/tmp/beancounter.db", cfg.Database.Writer.Path)
	require.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	require.Equal(t, "ca_test", cfg.Stripe.OauthClientID)
	require.Equal(t, "sk_connect_456", cfg.Stripe.OauthSecret)
	require.Equal(t, "https://app.example.com/connect/return", cfg.Stripe.OauthRedirectURI)
	require.Equal(t, 0.05, cfg.Fees.Rate)
	require.Equal(t, 5*time.Minute, cfg.Sweeps.Interval)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.Development)

	// Sections the file does not mention keep their defaults.
	require.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	require.Equal(t, DefaultRALWindow, cfg.RAL.Window)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestLoadConfigInvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beancounterd.toml")
	require.NoError(t, os.WriteFile(path, []byte("[fees]\nrate = 1.5\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "fees.rate")
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("BEANCOUNTER_SERVICE_PORT", "7777")
	t.Setenv("BEANCOUNTER_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.Service.Port)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateConfig(t *testing.T) {
	testcases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "service port out of range",
			mutate:  func(c *Config) { c.Service.Port = 0 },
			wantErr: "service.port",
		},
		{
			name: "shared listener address",
			mutate: func(c *Config) {
				c.Metrics.Host = c.Service.Host
				c.Metrics.Port = c.Service.Port
			},
			wantErr: "share address",
		},
		{
			name:    "postgres endpoint without database",
			mutate:  func(c *Config) { c.Database.Writer.Database = "" },
			wantErr: "database.writer.database",
		},
		{
			name: "sqlite endpoint without path",
			mutate: func(c *Config) {
				c.Database.Reader = DatabaseEndpoint{Driver: "sqlite"}
			},
			wantErr: "database.reader.path",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Reader.Driver = "oracle" },
			wantErr: "postgres or sqlite",
		},
		{
			name:    "fee rate of one",
			mutate:  func(c *Config) { c.Fees.Rate = 1 },
			wantErr: "fees.rate",
		},
		{
			name:    "zero fee rate",
			mutate:  func(c *Config) { c.Fees.Rate = 0 },
			wantErr: "fees.rate",
		},
		{
			name: "min samples above window",
			mutate: func(c *Config) {
				c.RAL.Window = 5
				c.RAL.MinSamples = 6
			},
			wantErr: "ral.min_samples",
		},
		{
			name:    "non-positive sweep interval",
			mutate:  func(c *Config) { c.Sweeps.Interval = 0 },
			wantErr: "sweeps.interval",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDatabaseEndpointStoreConfig(t *testing.T) {
	t.Run("empty endpoint keeps the pool defaults", func(t *testing.T) {
		cfg := DatabaseEndpoint{}.StoreConfig()
		require.Equal(t, relationaldb.DefaultConfig(), cfg)
	})

	t.Run("set fields override", func(t *testing.T) {
		cfg := DatabaseEndpoint{
			Driver:       "sqlite",
			Path:         "/var/lib/beancounter.db",
			MaxOpenConns: 1,
		}.StoreConfig()
		require.Equal(t, relationaldb.DriverSQLite, cfg.Driver)
		require.Equal(t, "/var/lib/beancounter.db", cfg.Path)
		require.Equal(t, 1, cfg.MaxOpenConns)
		require.Equal(t, relationaldb.DefaultConfig().DefaultTimeout, cfg.DefaultTimeout, "untouched fields keep defaults")
	})
}
