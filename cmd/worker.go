package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background maintenance outside the API process",
}

var purgeOnce bool

// Session purging also runs inside the server; this worker is for deployments
// that run several API replicas and want a single purger.
var sessionWorkerCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Delete expired and revoked sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		if purgeOnce {
			n, err := deps.Auth.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d sessions\n", n)
			return nil
		}

		interval := deps.Config.Security.SessionPurge
		deps.Logger.Info("session worker started", "interval", interval)
		deps.Auth.RunPurger(ctx, interval)
		deps.Logger.Info("session worker stopped")
		return nil
	},
}

func init() {
	sessionWorkerCmd.Flags().BoolVar(&purgeOnce, "once", false, "purge once and exit")

	workerCmd.AddCommand(sessionWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
