package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open4/dydns/internal/config"
	"github.com/open4/dydns/internal/firewall"
	"github.com/open4/dydns/internal/logging"
	"github.com/open4/dydns/internal/reconcile"
	"github.com/open4/dydns/internal/resolve"
)

// SyncCmd represents the dydns sync subcommand: one reconciliation run.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile firewall rules with current DNS answers once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		logger := logging.GetLogger()
		if logger == nil {
			logger = slog.Default()
		}

		path := config.ResolvePath(cfgFile)
		mappings, err := config.Load(path)
		if err != nil {
			logger.Error("mapping file load failed", slog.String("path", path), slog.Any("error", err))
			return err
		}

		deleteAll := viper.GetBool("delete-all")

		logger.Info("starting sync",
			slog.String("config", path),
			slog.Int("mappings", len(mappings)),
			slog.Bool("delete_all", deleteAll),
		)

		engine := &reconcile.Engine{
			Executor: firewall.NewExecutor(),
			Binary:   firewall.Binary(),
			Resolver: resolve.NewSystemResolver(),
			Logger:   logger,
		}

		if _, err := engine.Run(ctx, mappings, deleteAll); err != nil {
			logger.Error("sync failed", slog.Any("error", err))
			return err
		}

		return nil
	},
}

func init() {
	SyncCmd.Flags().Bool("delete-all", false, "Remove every rule this tool manages instead of syncing")

	if err := viper.BindPFlag("delete-all", SyncCmd.Flags().Lookup("delete-all")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind delete-all flag: %v\n", err)
		os.Exit(1)
	}
}
