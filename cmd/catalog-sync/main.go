package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/config"
	"github.com/example/autolead/internal/database"
	"github.com/example/autolead/internal/logger"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "catalog-sync",
		Short: "Mirror the external car catalog feed into the cars table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.CatalogFeedURL == "" {
				return fmt.Errorf("CATALOG_FEED_URL must be set")
			}
			if interval <= 0 {
				interval = cfg.CatalogSyncInterval
			}

			zlog, err := logger.New(logger.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = zlog.Sync() }()

			db, err := database.Connect(cfg.DatabaseURL, zlog)
			if err != nil {
				return err
			}

			syncer := services.NewCatalogSyncer(
				services.NewCatalogService(cfg.CatalogFeedURL, cfg.CatalogFeedAPIKey),
				repository.NewCarRepository(db),
				cfg.CatalogRegistrationType,
				cfg.CatalogMinYear,
				zlog,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, syncer, once, interval, zlog)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single sync and exit")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between syncs (defaults to CATALOG_SYNC_INTERVAL_MINUTES)")
	return cmd
}

type syncer interface {
	Sync(ctx context.Context) (services.SyncResult, error)
}

func run(ctx context.Context, s syncer, once bool, interval time.Duration, zlog *zap.Logger) error {
	if once {
		_, err := s.Sync(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sync(ctx); err != nil {
			zlog.Error("catalog sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
