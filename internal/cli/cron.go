package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/umpyre/beancounterd/internal/di"
)

// cronCmd runs one maintenance pass and exits, for deployments that schedule
// sweeps externally instead of running them inside the server.
var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Run one maintenance pass and exit",
	Long: `Run the maintenance sweeps once: refund escrowed payments whose messages
expired unread, and pay out clients who opted in to automatic payouts.`,
	RunE: runCron,
}

func init() {
	rootCmd.AddCommand(cronCmd)
}

func runCron(cmd *cobra.Command, args []string) error {
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

	sweeper, err := provider.GetSweeper()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := sweeper.Run(ctx); err != nil {
		return err
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return provider.Close(closeCtx)
}
