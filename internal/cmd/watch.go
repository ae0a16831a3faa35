package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/open4/dydns/internal/config"
	"github.com/open4/dydns/internal/firewall"
	"github.com/open4/dydns/internal/logging"
	"github.com/open4/dydns/internal/metrics"
	"github.com/open4/dydns/internal/reconcile"
	"github.com/open4/dydns/internal/resolve"
)

// WatchCmd represents the dydns watch subcommand: periodic sync runs plus a
// re-sync whenever the mapping file changes on disk.
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run sync periodically and on mapping file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger()
		if logger == nil {
			logger = slog.Default()
		}

		intervalRaw := viper.GetString("interval")
		interval, err := time.ParseDuration(intervalRaw)
		if err != nil {
			return fmt.Errorf("parse interval %q: %w", intervalRaw, err)
		}
		if interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", interval)
		}

		path := config.ResolvePath(cfgFile)

		instruments := metrics.NewMetrics()
		health := metrics.NewHealthChecker()

		engine := &reconcile.Engine{
			Executor: firewall.NewExecutor(),
			Binary:   firewall.Binary(),
			Resolver: resolve.NewSystemResolver(),
			Logger:   logger,
			Metrics:  instruments,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		metricsAddr := viper.GetString("metrics-addr")
		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", instruments.Handler())
			mux.Handle("/healthz", health.Handler())
			server := &http.Server{Addr: metricsAddr, Handler: mux}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server failed", slog.Any("error", err))
				}
			}()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("metrics server listening", slog.String("addr", metricsAddr))
		}

		runOnce := func() {
			mappings, err := config.Load(path)
			if err != nil {
				logger.Error("mapping file load failed; keeping previous rules",
					slog.String("path", path),
					slog.Any("error", err),
				)
				instruments.IncrementError("config")
				return
			}
			if _, err := engine.Run(ctx, mappings, false); err != nil {
				logger.Error("sync failed", slog.Any("error", err))
				return
			}
			health.SetSnapshotLoaded()
			health.SetSyncCompleted()
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		defer watcher.Close()

		// Watch the directory, not the file: editors and config managers
		// replace files via rename, which drops a file-level watch.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watch config directory: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("watch started",
			slog.String("config", path),
			slog.String("interval", interval.String()),
		)

		runOnce()

		for {
			select {
			case sig := <-sigCh:
				logger.Info("shutdown signal received", slog.String("signal", sig.String()))
				cancel()
				logger.Info("watch shutdown complete")
				return nil

			case <-ticker.C:
				runOnce()

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				logger.Info("mapping file changed; re-syncing", slog.String("op", event.Op.String()))
				runOnce()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				logger.Warn("config watcher error", slog.Any("error", err))
			}
		}
	},
}

func init() {
	WatchCmd.Flags().String("interval", "5m", "How often to re-run the sync")
	WatchCmd.Flags().String("metrics-addr", ":9633", "Address for /metrics and /healthz (empty disables)")

	if err := viper.BindPFlag("interval", WatchCmd.Flags().Lookup("interval")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind interval flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("metrics-addr", WatchCmd.Flags().Lookup("metrics-addr")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind metrics-addr flag: %v\n", err)
		os.Exit(1)
	}
}
