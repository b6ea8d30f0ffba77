package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
	"github.com/vdp-1/cubesat-telemetry/internal/api"
	"github.com/vdp-1/cubesat-telemetry/internal/checkpoint"
	"github.com/vdp-1/cubesat-telemetry/internal/metrics"
	"github.com/vdp-1/cubesat-telemetry/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store := storage.NewSqliteStore(config.Storage.DatabasePath)
	defer store.Close()

	cursor := checkpoint.NewFileStore(config.Engine.CheckpointPath)
	feed := anomaly.NewJSONLFeed(config.Feed.Path)

	engine, err := anomaly.NewEngine(store, cursor, feed, config.Engine.EngineSettings(), anomaly.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating anomaly engine: %w", err)
	}

	serverErr := make(chan error, 1)
	if config.Server.Enabled {
		srv := api.NewServer(store, api.WithLogger(logger))
		go func() {
			serverErr <- api.Serve(ctx, config.Server.Listen, srv.Handler())
		}()
		logger.Info("http server listening", slog.String("addr", config.Server.Listen))
	}

	interval := config.Engine.Interval()
	logger.Info("anomaly engine started",
		slog.String("database", config.Storage.DatabasePath),
		slog.String("feed", config.Feed.Path),
		slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := engine.RunPass(ctx)
		if err != nil {
			logger.Error("evaluation pass failed", slog.String("error", err.Error()))
		}

		metrics.ObserveEnginePass(stats)
		if stats.Evaluated > 0 {
			logger.Info("evaluation pass complete",
				slog.Int("evaluated", stats.Evaluated),
				slog.Int("detected", stats.Detected))
		}

		select {
		case <-ctx.Done():
			logger.Info("anomaly engine stopped")
			return nil

		case err = <-serverErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil

		case <-ticker.C:
		}
	}
}
