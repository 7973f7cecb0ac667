package di

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/umpyre/beancounterd/internal/config"
	"github.com/umpyre/beancounterd/internal/escrow"
	grpcserver "github.com/umpyre/beancounterd/internal/grpc"
	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/payouts"
	"github.com/umpyre/beancounterd/internal/ral"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb/postgres"
	"github.com/umpyre/beancounterd/internal/stripe"
)

// Provider configures and registers services in the container.
type Provider struct {
	container *Container
	config    *config.Config
	registry  *prometheus.Registry
}

// NewProvider creates a new service provider.
func NewProvider(container *Container, cfg *config.Config) *Provider {
	return &Provider{
		container: container,
		config:    cfg,
		registry:  prometheus.NewRegistry(),
	}
}

// RegisterAll registers all services.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)

	p.registerLogger()
	p.registerStorageBuilders()
	p.registerDomainBuilders()
	p.registerRPCBuilders()

	return nil
}

// Registry returns the metrics registry shared by all services.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Provider) registerLogger() {
	p.container.RegisterBuilder(ServiceLogger, func(c *Container) (interface{}, error) {
		level, err := zapcore.ParseLevel(p.config.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", p.config.Logging.Level, err)
		}

		zapCfg := zap.NewProductionConfig()
		if p.config.Logging.Development {
			zapCfg = zap.NewDevelopmentConfig()
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)

		return zapCfg.Build()
	})
}

// registerStorageBuilders registers the reader and writer store builders.
// Opening happens here so that every consumer sees a connected pool.
func (p *Provider) registerStorageBuilders() {
	open := func(cfg *relationaldb.Config) (interface{}, error) {
		store, err := postgres.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Open(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	}

	p.container.RegisterBuilder(ServiceWriterStore, func(c *Container) (interface{}, error) {
		return open(p.config.Database.Writer.StoreConfig())
	})
	p.container.RegisterBuilder(ServiceReaderStore, func(c *Container) (interface{}, error) {
		return open(p.config.Database.Reader.StoreConfig())
	})
}

// registerDomainBuilders registers the ledger, escrow, RAL and payout
// services.
func (p *Provider) registerDomainBuilders() {
	p.container.RegisterBuilder(ServiceLedger, func(c *Container) (interface{}, error) {
		store, err := p.writerStore(c)
		if err != nil {
			return nil, err
		}
		return ledger.New(store, p.config.Fees.Rate), nil
	})

	p.container.RegisterBuilder(ServiceEscrow, func(c *Container) (interface{}, error) {
		store, err := p.writerStore(c)
		if err != nil {
			return nil, err
		}
		l, err := p.ledger(c)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return escrow.NewService(store, l, log.Named("escrow")), nil
	})

	p.container.RegisterBuilder(ServiceRAL, func(c *Container) (interface{}, error) {
		store, err := p.readerStore(c)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return ral.NewEstimator(store, log.Named("ral"), p.config.RAL.Window, p.config.RAL.MinSamples), nil
	})

	p.container.RegisterBuilder(ServiceStripe, func(c *Container) (interface{}, error) {
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return stripe.NewClient(stripe.Config{
			SecretKey:        p.config.Stripe.SecretKey,
			OauthClientID:    p.config.Stripe.OauthClientID,
			OauthSecret:      p.config.Stripe.OauthSecret,
			OauthRedirectURI: p.config.Stripe.OauthRedirectURI,
		}, log.Named("stripe")), nil
	})

	p.container.RegisterBuilder(ServicePayer, func(c *Container) (interface{}, error) {
		store, err := p.writerStore(c)
		if err != nil {
			return nil, err
		}
		l, err := p.ledger(c)
		if err != nil {
			return nil, err
		}
		client, err := p.stripeClient(c)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return payouts.NewPayer(store, l, client, log.Named("payouts")), nil
	})

	p.container.RegisterBuilder(ServiceSweeper, func(c *Container) (interface{}, error) {
		store, err := p.writerStore(c)
		if err != nil {
			return nil, err
		}
		l, err := p.ledger(c)
		if err != nil {
			return nil, err
		}
		payerSvc, err := c.Get(ServicePayer)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return payouts.NewSweeper(store, l, payerSvc.(*payouts.Payer), log.Named("sweeper"),
			p.config.Sweeps.PaymentExpiry, p.config.Sweeps.TransferBackoff), nil
	})
}

// registerRPCBuilders registers the RPC server and its metrics.
func (p *Provider) registerRPCBuilders() {
	p.container.RegisterBuilder(ServiceMetrics, func(c *Container) (interface{}, error) {
		return grpcserver.NewMetrics(p.registry), nil
	})

	p.container.RegisterBuilder(ServiceRPCServer, func(c *Container) (interface{}, error) {
		store, err := p.writerStore(c)
		if err != nil {
			return nil, err
		}
		l, err := p.ledger(c)
		if err != nil {
			return nil, err
		}
		escrowSvc, err := c.Get(ServiceEscrow)
		if err != nil {
			return nil, err
		}
		ralSvc, err := c.Get(ServiceRAL)
		if err != nil {
			return nil, err
		}
		payerSvc, err := c.Get(ServicePayer)
		if err != nil {
			return nil, err
		}
		client, err := p.stripeClient(c)
		if err != nil {
			return nil, err
		}
		metricsSvc, err := c.Get(ServiceMetrics)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}

		cfg := &grpcserver.ServerConfig{
			Address:        fmt.Sprintf("%s:%d", p.config.Service.Host, p.config.Service.Port),
			MaxRecvMsgSize: grpcserver.DefaultServerConfig().MaxRecvMsgSize,
			MaxSendMsgSize: grpcserver.DefaultServerConfig().MaxSendMsgSize,
		}
		return grpcserver.NewServer(cfg, grpcserver.Services{
			Store:   store,
			Ledger:  l,
			Escrow:  escrowSvc.(*escrow.Service),
			RAL:     ralSvc.(*ral.Estimator),
			Payer:   payerSvc.(*payouts.Payer),
			Charger: client,
			Oauth:   client,
		}, log.Named("rpc"), metricsSvc.(*grpcserver.Metrics))
	})
}

// GetRPCServer returns the assembled RPC server.
func (p *Provider) GetRPCServer() (*grpcserver.Server, error) {
	svc, err := p.container.Get(ServiceRPCServer)
	if err != nil {
		return nil, err
	}
	return svc.(*grpcserver.Server), nil
}

// GetSweeper returns the assembled maintenance sweeper.
func (p *Provider) GetSweeper() (*payouts.Sweeper, error) {
	svc, err := p.container.Get(ServiceSweeper)
	if err != nil {
		return nil, err
	}
	return svc.(*payouts.Sweeper), nil
}

// GetLogger returns the shared logger.
func (p *Provider) GetLogger() (*zap.Logger, error) {
	return p.logger(p.container)
}

// GetConfig returns the configuration from the container.
func (p *Provider) GetConfig() *config.Config {
	return p.config
}

// Close shuts down the stateful services the provider built.
func (p *Provider) Close(ctx context.Context) error {
	var firstErr error
	for _, name := range []string{ServiceWriterStore, ServiceReaderStore} {
		c := p.container
		c.mu.RLock()
		svc, exists := c.services[name]
		c.mu.RUnlock()
		if !exists {
			continue
		}
		if store, ok := svc.(relationaldb.Store); ok {
			if err := store.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Provider) writerStore(c *Container) (relationaldb.Store, error) {
	svc, err := c.Get(ServiceWriterStore)
	if err != nil {
		return nil, err
	}
	return svc.(relationaldb.Store), nil
}

func (p *Provider) readerStore(c *Container) (relationaldb.Store, error) {
	svc, err := c.Get(ServiceReaderStore)
	if err != nil {
		return nil, err
	}
	return svc.(relationaldb.Store), nil
}

func (p *Provider) ledger(c *Container) (*ledger.Ledger, error) {
	svc, err := c.Get(ServiceLedger)
	if err != nil {
		return nil, err
	}
	return svc.(*ledger.Ledger), nil
}

func (p *Provider) stripeClient(c *Container) (*stripe.Client, error) {
	svc, err := c.Get(ServiceStripe)
	if err != nil {
		return nil, err
	}
	return svc.(*stripe.Client), nil
}

func (p *Provider) logger(c *Container) (*zap.Logger, error) {
	svc, err := c.Get(ServiceLogger)
	if err != nil {
		return nil, err
	}
	return svc.(*zap.Logger), nil
}
