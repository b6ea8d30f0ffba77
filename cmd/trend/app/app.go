package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderTrend(ctx, store, config, logger)
}

func renderTrend(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	// An open-ended range covers everything the pipeline has stored.
	from := time.UnixMilli(0).UTC()
	to := time.Now().UTC()
	if config.From != nil {
		from = config.From.UTC()
	}
	if config.To != nil {
		to = config.To.UTC()
	}

	logger.Info("querying trend range",
		slog.String("from", from.Format(time.DateTime)),
		slog.String("to", to.Format(time.DateTime)))

	points, err := store.Trend(ctx, from, to)
	if err != nil {
		return fmt.Errorf("querying trend: %w", err)
	}

	data := NewTrendData(points)
	if data.Len() < 2 {
		return fmt.Errorf("only %d samples in range, nothing to chart", data.Len())
	}

	logger.Info("finished reading trend points",
		slog.Group("stats",
			slog.Int("samples", data.Len()),
			slog.String("start", data.Start.Format(time.DateTime)),
			slog.String("end", data.End.Format(time.DateTime)),
			slog.String("battV", fmt.Sprintf("%0.2f..%0.2f", data.Battery.Min, data.Battery.Max)),
			slog.String("tempC", fmt.Sprintf("%0.2f..%0.2f", data.Temp.Min, data.Temp.Max)),
			slog.String("powerW", fmt.Sprintf("%0.3f..%0.3f", data.Power.Min, data.Power.Max)),
		))

	renderer, err := NewTrendRenderer(RenderConfig{
		Location:      config.TimeZone,
		FontPath:      config.FontPath,
		Width:         config.Width,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating trend renderer: %w", err)
	}

	logger.Info("rendering trend chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
		))

	img, err := renderer.Render(data)
	if err != nil {
		return fmt.Errorf("rendering trend chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
