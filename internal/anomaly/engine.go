// Package anomaly implements the rolling-statistics anomaly engine. It scans
// newly persisted packets in id order, maintains bounded per-channel sample
// windows, and evaluates fixed-threshold and K-sigma deviation rules against
// them. Detected anomalies are deduplicated at the persistence boundary and
// emitted to an append-only event feed.
package anomaly

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/checkpoint"
)

// Store is the persistence boundary the engine reads packets from and
// writes anomalies to.
type Store interface {
	// RecentPackets returns the most recent limit packets in ascending id
	// order, for window warm-up.
	RecentPackets(ctx context.Context, limit int) ([]ChannelSample, error)

	// PacketsSince returns every packet with id >= minID in ascending order.
	PacketsSince(ctx context.Context, minID int64) ([]ChannelSample, error)

	// InsertAnomalies persists a batch all-or-nothing, ignoring records
	// whose (packet id, tag) already exist.
	InsertAnomalies(ctx context.Context, records []Record) error
}

// Feed receives every anomaly found in a pass, independent of whether the
// database insert succeeded.
type Feed interface {
	Append(records []Record) error
}

// Config holds the engine tuning parameters.
type Config struct {
	WindowSize    int     // per-channel rolling window capacity
	Sigma         float64 // K in the mean ± K·stddev deviation rules
	TempHighCenti float64 // fixed critical threshold, centi-degrees C
	TempLowCenti  float64 // fixed critical threshold, centi-degrees C
}

// DefaultConfig returns the tuning the mission has been operating with:
// 30-sample windows, 3-sigma deviation rules, ±(50.00, -20.00) °C bounds.
func DefaultConfig() Config {
	return Config{
		WindowSize:    30,
		Sigma:         3.0,
		TempHighCenti: 5000,
		TempLowCenti:  -2000,
	}
}

// PassStats are the counters collected over one engine pass.
type PassStats struct {
	Evaluated int // packets examined this pass
	Detected  int // anomaly records found this pass (before dedup)
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the record-creation clock, for tests.
func WithClock(now func() time.Time) func(*Engine) {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine owns the per-channel rolling windows for the lifetime of the
// process and tracks its own evaluation cursor, independent of the stream
// reader's byte cursor. The cursor holds the next unevaluated packet id.
type Engine struct {
	store  Store
	cursor checkpoint.Store
	feed   Feed
	config Config

	voltage *Window
	current *Window
	power   *Window
	temp    *Window

	nextID       int64
	cursorLoaded bool
	warmedUp     bool

	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an anomaly engine. The cursor store must be exclusive
// to this engine.
func NewEngine(store Store, cursor checkpoint.Store, feed Feed, config Config, options ...func(*Engine)) (*Engine, error) {
	if config.Sigma <= 0 {
		return nil, fmt.Errorf("invalid sigma: %f", config.Sigma)
	}

	var err error
	e := Engine{
		store:  store,
		cursor: cursor,
		feed:   feed,
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	if e.voltage, err = NewWindow(config.WindowSize); err != nil {
		return nil, err
	}
	if e.current, err = NewWindow(config.WindowSize); err != nil {
		return nil, err
	}
	if e.power, err = NewWindow(config.WindowSize); err != nil {
		return nil, err
	}
	if e.temp, err = NewWindow(config.WindowSize); err != nil {
		return nil, err
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// RunPass performs one evaluation pass over packets persisted since the
// last pass. The evaluation cursor advances to past the greatest packet id
// examined even when the anomaly insert fails; a persistence failure can
// therefore lose anomalies for the affected range. That trade-off is
// deliberate: the engine favors forward progress over redelivery.
func (e *Engine) RunPass(ctx context.Context) (PassStats, error) {
	var stats PassStats

	if !e.cursorLoaded {
		next, err := e.cursor.Load()
		if err != nil {
			return stats, fmt.Errorf("loading evaluation cursor: %w", err)
		}
		e.nextID = next
		e.cursorLoaded = true
	}

	if !e.warmedUp {
		if err := e.warmUp(ctx); err != nil {
			return stats, err
		}
	}

	samples, err := e.store.PacketsSince(ctx, e.nextID)
	if err != nil {
		return stats, fmt.Errorf("querying packets since %d: %w", e.nextID, err)
	}
	if len(samples) == 0 {
		e.logger.Debug("no new packets to evaluate", slog.Int64("nextID", e.nextID))
		return stats, nil
	}

	var found []Record
	next := e.nextID
	for _, sample := range samples {
		stats.Evaluated++
		if id := int64(sample.PacketID) + 1; id > next {
			next = id
		}
		found = append(found, e.evaluate(sample)...)
	}
	stats.Detected = len(found)

	if len(found) > 0 {
		if err := e.store.InsertAnomalies(ctx, found); err != nil {
			// Rolled back by the store; the cursor still advances below.
			e.logger.Error("anomaly batch insert failed", slog.Int("count", len(found)), slog.String("error", err.Error()))
		}

		if err := e.feed.Append(found); err != nil {
			e.logger.Error("event feed append failed", slog.String("error", err.Error()))
		}
	}

	if next > e.nextID {
		e.nextID = next
		if err := e.cursor.Save(e.nextID); err != nil {
			e.logger.Error("saving evaluation cursor failed", slog.Int64("nextID", e.nextID), slog.String("error", err.Error()))
		}
	}

	return stats, nil
}

// warmUp seeds the rolling windows from the most recent persisted packets
// in ascending id order, so the first pass after a restart evaluates
// against realistic statistics instead of an empty window.
func (e *Engine) warmUp(ctx context.Context) error {
	samples, err := e.store.RecentPackets(ctx, e.config.WindowSize)
	if err != nil {
		return fmt.Errorf("warming up windows: %w", err)
	}

	for _, s := range samples {
		e.push(s)
	}
	e.warmedUp = true

	e.logger.Info("window warm-up complete",
		slog.Int("voltage", e.voltage.Len()),
		slog.Int("current", e.current.Len()),
		slog.Int("power", e.power.Len()),
		slog.Int("temp", e.temp.Len()))
	return nil
}

func (e *Engine) push(s ChannelSample) {
	if s.BatteryMv != nil {
		e.voltage.Push(*s.BatteryMv)
	}
	if s.CurrentMa != nil {
		e.current.Push(*s.CurrentMa)
	}
	if s.PowerMw != nil {
		e.power.Push(*s.PowerMw)
	}
	if s.TempCenti != nil {
		e.temp.Push(*s.TempCenti)
	}
}

// evaluate pushes the sample's channels into their windows and then applies
// every rule against the statistics as they now stand, current sample
// included. Each rule fires at most once per packet.
func (e *Engine) evaluate(s ChannelSample) []Record {
	e.push(s)

	detail := Detail{
		BatteryMv: s.BatteryMv,
		CurrentMa: s.CurrentMa,
		PowerMw:   s.PowerMw,
		TempCenti: s.TempCenti,
	}
	detail.VMean, detail.VStd = statPtrs(e.voltage)
	detail.IMean, detail.IStd = statPtrs(e.current)
	detail.PMean, detail.PStd = statPtrs(e.power)
	detail.TMean, detail.TStd = statPtrs(e.temp)

	var tags []Tag

	if below(s.BatteryMv, detail.VMean, detail.VStd, e.config.Sigma) {
		tags = append(tags, TagVoltageDrop)
	}
	if above(s.CurrentMa, detail.IMean, detail.IStd, e.config.Sigma) {
		tags = append(tags, TagCurrentSpike)
	}
	if above(s.PowerMw, detail.PMean, detail.PStd, e.config.Sigma) {
		tags = append(tags, TagPowerSpike)
	}

	if s.TempCenti != nil {
		if *s.TempCenti > e.config.TempHighCenti {
			tags = append(tags, TagTempHigh)
		}
		if *s.TempCenti < e.config.TempLowCenti {
			tags = append(tags, TagTempLow)
		}
		if above(s.TempCenti, detail.TMean, detail.TStd, e.config.Sigma) {
			tags = append(tags, TagTempRise)
		}
	}

	if len(tags) == 0 {
		return nil
	}

	createdMs := e.now().UnixMilli()
	tsISO := time.UnixMilli(s.TimestampMs).UTC().Format(time.RFC3339Nano)
	records := make([]Record, len(tags))
	for i, tag := range tags {
		records[i] = Record{
			PacketID:     s.PacketID,
			TimestampMs:  s.TimestampMs,
			TimestampISO: tsISO,
			Tag:          tag,
			Severity:     severityFor(tag),
			Detail:       detail,
			CreatedMs:    createdMs,
		}
	}
	return records
}

func severityFor(tag Tag) Severity {
	switch tag {
	case TagTempHigh, TagTempLow:
		return SeverityCritical
	default:
		return SeverityMajor
	}
}

func statPtrs(w *Window) (mean, stddev *float64) {
	m, sd, ok := w.Stats()
	if !ok {
		return nil, nil
	}
	return &m, &sd
}

// above reports whether v exceeds mean + sigma·stddev. The comparison is
// strict and undefined statistics or a zero deviation never fire.
func above(v, mean, stddev *float64, sigma float64) bool {
	if v == nil || mean == nil || stddev == nil || *stddev <= 0 {
		return false
	}
	return *v > *mean+sigma*(*stddev)
}

// below reports whether v falls under mean - sigma·stddev.
func below(v, mean, stddev *float64, sigma float64) bool {
	if v == nil || mean == nil || stddev == nil || *stddev <= 0 {
		return false
	}
	return *v < *mean-sigma*(*stddev)
}
