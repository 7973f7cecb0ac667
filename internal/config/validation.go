package config

import "fmt"

// ValidateConfig checks the configuration for values the service cannot run
// with. Provider credentials are deliberately not required here so that
// read-only and development deployments can start without them.
func ValidateConfig(c *Config) error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port out of range: %d", c.Service.Port)
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}
	if c.Service.Port == c.Metrics.Port && c.Service.Host == c.Metrics.Host {
		return fmt.Errorf("service and metrics listeners share address %s:%d", c.Service.Host, c.Service.Port)
	}

	if err := validateEndpoint("database.reader", c.Database.Reader); err != nil {
		return err
	}
	if err := validateEndpoint("database.writer", c.Database.Writer); err != nil {
		return err
	}

	if c.Fees.Rate <= 0 || c.Fees.Rate >= 1 {
		return fmt.Errorf("fees.rate must be in (0, 1): %g", c.Fees.Rate)
	}
	if c.RAL.Window < 1 {
		return fmt.Errorf("ral.window must be positive: %d", c.RAL.Window)
	}
	if c.RAL.MinSamples < 1 {
		return fmt.Errorf("ral.min_samples must be positive: %d", c.RAL.MinSamples)
	}
	if c.RAL.MinSamples > c.RAL.Window {
		return fmt.Errorf("ral.min_samples (%d) exceeds ral.window (%d)", c.RAL.MinSamples, c.RAL.Window)
	}

	if c.Sweeps.Interval <= 0 {
		return fmt.Errorf("sweeps.interval must be positive: %s", c.Sweeps.Interval)
	}
	if c.Sweeps.PaymentExpiry <= 0 {
		return fmt.Errorf("sweeps.payment_expiry must be positive: %s", c.Sweeps.PaymentExpiry)
	}
	if c.Sweeps.TransferBackoff <= 0 {
		return fmt.Errorf("sweeps.transfer_backoff must be positive: %s", c.Sweeps.TransferBackoff)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %q", c.Logging.Level)
	}
	return nil
}

func validateEndpoint(section string, e DatabaseEndpoint) error {
	switch e.Driver {
	case "", "postgres":
		if e.Host == "" {
			return fmt.Errorf("%s.host is required", section)
		}
		if e.Database == "" {
			return fmt.Errorf("%s.database is required", section)
		}
	case "sqlite":
		if e.Path == "" {
			return fmt.Errorf("%s.path is required for the sqlite driver", section)
		}
	default:
		return fmt.Errorf("%s.driver must be postgres or sqlite: %q", section, e.Driver)
	}
	return nil
}
