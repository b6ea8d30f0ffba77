package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vdp-1/cubesat-telemetry/internal/api"
	"github.com/vdp-1/cubesat-telemetry/internal/checkpoint"
	"github.com/vdp-1/cubesat-telemetry/internal/ingest"
	"github.com/vdp-1/cubesat-telemetry/internal/metrics"
	"github.com/vdp-1/cubesat-telemetry/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store := storage.NewSqliteStore(config.Storage.DatabasePath)
	defer store.Close()

	cursor := checkpoint.NewFileStore(config.Stream.CheckpointPath)
	validator := ingest.NewValidator(config.Validation.TimeWindow(), config.Validation.RangesOrDefault())
	reader := ingest.NewReader(config.Stream.Path, cursor, store, validator, ingest.WithLogger(logger))

	var passLog *metrics.PassLog
	if config.Metrics.PassLogPath != "" {
		passLog = metrics.NewPassLog(config.Metrics.PassLogPath)
	}

	serverErr := make(chan error, 1)
	if config.Server.Enabled {
		srv := api.NewServer(store, api.WithLogger(logger))
		go func() {
			serverErr <- api.Serve(ctx, config.Server.Listen, srv.Handler())
		}()
		logger.Info("http server listening", slog.String("addr", config.Server.Listen))
	}

	interval := config.Stream.Interval()
	logger.Info("ingestion started",
		slog.String("stream", config.Stream.Path),
		slog.String("database", config.Storage.DatabasePath),
		slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m, err := reader.RunPass(ctx)
		if err != nil {
			// A failed pass leaves the cursor before the unsaved record; the
			// next tick retries from there.
			logger.Error("ingestion pass failed", slog.String("error", err.Error()))
		}

		metrics.ObserveIngestPass(m)
		if passLog != nil {
			if err = passLog.Append(m); err != nil {
				logger.Warn("appending pass log failed", slog.String("error", err.Error()))
			}
		}

		if m.BytesConsumed > 0 {
			logger.Info("ingestion pass complete",
				slog.Int("processed", m.Processed),
				slog.Int("framingErrors", m.FramingErrors),
				slog.Int("integrityFailures", m.IntegrityFailures),
				slog.Int("missingPackets", m.MissingPackets),
				slog.Int("duplicates", m.Duplicates),
				slog.Int("flagged", m.Flagged),
				slog.String("consumed", humanize.Bytes(uint64(m.BytesConsumed))))
		}

		select {
		case <-ctx.Done():
			logger.Info("ingestion stopped")
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
