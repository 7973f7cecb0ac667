package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/umpyre/beancounterd/internal/di"
)

// serverCmd represents the server command (default action)
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the payment service",
	Long: `Start beancounterd: the RPC listener, the Prometheus metrics endpoint
and the periodic maintenance sweeps (expired-escrow refunds and automatic
payouts).

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Running with no subcommand starts the server.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container := di.New()
	provider := di.NewProvider(container, cfg)
	if err := provider.RegisterAll(); err != nil {
		return err
	}

	log, err := provider.GetLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	server, err := provider.GetRPCServer()
	if err != nil {
		return err
	}
	sweeper, err := provider.GetSweeper()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
		Handler: promhttp.HandlerFor(provider.Registry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	}

	log.Info("starting beancounterd",
		zap.String("service", fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.Port)),
		zap.String("metrics", metricsSrv.Addr),
		zap.Duration("sweep_interval", cfg.Sweeps.Interval))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start()
	})

	group.Go(func() error {
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(cfg.Sweeps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := sweeper.Run(ctx); err != nil {
					log.Error("maintenance sweep failed", zap.Error(err))
				}
			}
		}
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		server.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown failed", zap.Error(err))
		}
		return provider.Close(shutdownCtx)
	})

	return group.Wait()
}
