package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults for knobs the deployment usually leaves alone.
const (
	DefaultServiceHost = "0.0.0.0"
	DefaultServicePort = 8080
	DefaultMetricsHost = "0.0.0.0"
	DefaultMetricsPort = 9090

	DefaultFeeRate       = 0.03
	DefaultRALWindow     = 100
	DefaultRALMinSamples = 3

	DefaultSweepInterval   = 10 * time.Minute
	DefaultPaymentExpiry   = 30 * 24 * time.Hour
	DefaultTransferBackoff = 24 * time.Hour
)

// setDefaults installs the baseline configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.host", DefaultServiceHost)
	v.SetDefault("service.port", DefaultServicePort)

	v.SetDefault("metrics.host", DefaultMetricsHost)
	v.SetDefault("metrics.port", DefaultMetricsPort)

	v.SetDefault("database.reader.driver", "postgres")
	v.SetDefault("database.reader.host", "localhost")
	v.SetDefault("database.reader.port", 5432)
	v.SetDefault("database.reader.username", "beancounter")
	v.SetDefault("database.reader.database", "beancounter")
	v.SetDefault("database.reader.sslmode", "disable")
	v.SetDefault("database.writer.driver", "postgres")
	v.SetDefault("database.writer.host", "localhost")
	v.SetDefault("database.writer.port", 5432)
	v.SetDefault("database.writer.username", "beancounter")
	v.SetDefault("database.writer.database", "beancounter")
	v.SetDefault("database.writer.sslmode", "disable")

	// Empty defaults so the BEANCOUNTER_STRIPE_* environment variables bind.
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.oauth_client_id", "")
	v.SetDefault("stripe.oauth_secret", "")
	v.SetDefault("stripe.oauth_redirect_uri", "")

	v.SetDefault("fees.rate", DefaultFeeRate)

	v.SetDefault("ral.window", DefaultRALWindow)
	v.SetDefault("ral.min_samples", DefaultRALMinSamples)

	v.SetDefault("sweeps.interval", DefaultSweepInterval)
	v.SetDefault("sweeps.payment_expiry", DefaultPaymentExpiry)
	v.SetDefault("sweeps.transfer_backoff", DefaultTransferBackoff)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}
