// Package ingest implements the resumable telemetry stream reader and the
// packet validator. The reader replays whole records past a persisted byte
// cursor, so interrupted runs resume without reparsing history and without
// ever splitting a record across passes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vdp-1/cubesat-telemetry/internal/checkpoint"
	"github.com/vdp-1/cubesat-telemetry/internal/packet"
	"github.com/vdp-1/cubesat-telemetry/internal/telemetry"
)

// Sink is the persistence boundary the reader writes through. Upserts are
// keyed by packet id, which makes replay after a crash harmless.
type Sink interface {
	LatestPacket(ctx context.Context) (*telemetry.Previous, error)
	UpsertPacket(ctx context.Context, p *telemetry.EnrichedPacket) error
}

// PassMetrics are the counters collected over one reader pass.
type PassMetrics struct {
	Processed         int   // records decoded, validated and persisted
	FramingErrors     int   // records dropped for a bad magic marker
	IntegrityFailures int   // records dropped for a checksum mismatch
	MissingPackets    int   // sum of id-gap sizes over the pass
	Duplicates        int   // records whose id did not advance past the previous one
	Flagged           int   // persisted records with the aggregate anomaly flag set
	BytesConsumed     int64 // whole-record bytes advanced past this pass
}

// WithLogger sets the logger for the reader.
func WithLogger(logger *slog.Logger) func(*Reader) {
	return func(r *Reader) {
		r.logger = logger
	}
}

// Reader consumes the binary telemetry stream one fixed-size record at a
// time, resuming from a persisted byte cursor.
type Reader struct {
	streamPath string
	cursor     checkpoint.Store
	sink       Sink
	validator  *Validator
	logger     *slog.Logger
}

// NewReader creates a stream reader over the file at streamPath. The cursor
// store must be exclusive to this reader.
func NewReader(streamPath string, cursor checkpoint.Store, sink Sink, validator *Validator, options ...func(*Reader)) *Reader {
	r := Reader{
		streamPath: streamPath,
		cursor:     cursor,
		sink:       sink,
		validator:  validator,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// RunPass performs one ingestion pass: it consumes every complete record
// between the persisted cursor and the current end of stream, and persists
// the advanced cursor once at the end. A partial trailing record is left for
// the next pass; the producer may still be appending it. A persistence
// failure aborts the pass without advancing the cursor past unsaved data.
func (r *Reader) RunPass(ctx context.Context) (PassMetrics, error) {
	var m PassMetrics

	loaded, err := r.cursor.Load()
	if err != nil {
		return m, fmt.Errorf("loading stream cursor: %w", err)
	}
	cursor := loaded

	info, err := os.Stat(r.streamPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("telemetry stream not found, nothing to do", slog.String("path", r.streamPath))
			return m, nil
		}
		return m, fmt.Errorf("checking stream size: %w", err)
	}

	size := info.Size()
	if cursor > size {
		// The stream was truncated or rotated underneath us.
		r.logger.Warn("stream cursor beyond end of stream, resetting to start",
			slog.Int64("cursor", cursor), slog.Int64("streamSize", size))
		cursor = 0
	}
	start := cursor

	f, err := os.Open(r.streamPath)
	if err != nil {
		return m, fmt.Errorf("opening stream: %w", err)
	}
	defer f.Close()

	prev, err := r.sink.LatestPacket(ctx)
	if err != nil {
		return m, fmt.Errorf("loading latest persisted packet: %w", err)
	}

	var passErr error
	buf := make([]byte, packet.RecordSize)

	for size-cursor >= packet.RecordSize {
		if _, err = f.ReadAt(buf, cursor); err != nil {
			passErr = fmt.Errorf("reading record at offset %d: %w", cursor, err)
			break
		}

		res, err := packet.Decode(buf)
		if err != nil {
			passErr = fmt.Errorf("decoding record at offset %d: %w", cursor, err)
			break
		}

		if !res.FramingOK {
			m.FramingErrors++
			r.logger.Warn("framing error, skipping record",
				slog.Int64("offset", cursor),
				slog.String("magic", fmt.Sprintf("0x%08X", res.Packet.Magic)))
			cursor += packet.RecordSize
			continue
		}

		if !res.IntegrityOK {
			m.IntegrityFailures++
			r.logger.Warn("checksum mismatch, discarding record",
				slog.Int64("offset", cursor),
				slog.Int64("packetID", int64(res.Packet.ID)))
			cursor += packet.RecordSize
			continue
		}

		enriched := r.validator.Enrich(res, prev)
		if prev != nil && enriched.ID <= prev.ID {
			m.Duplicates++
		}

		if err = r.sink.UpsertPacket(ctx, enriched); err != nil {
			// Do not advance past unsaved data; the record is reprocessed
			// on the next pass.
			passErr = fmt.Errorf("persisting packet %d: %w", enriched.ID, err)
			break
		}

		prev = &telemetry.Previous{
			ID:          enriched.ID,
			TimestampMs: enriched.TimestampMs,
			BattV:       enriched.BattV,
			TempC:       enriched.TempC,
		}

		m.Processed++
		m.MissingPackets += int(enriched.MissingPackets)
		if enriched.Anomaly {
			m.Flagged++
		}
		cursor += packet.RecordSize
	}

	m.BytesConsumed = cursor - start
	if cursor != loaded {
		if err = r.cursor.Save(cursor); err != nil {
			// The previous checkpoint stays in effect; the interval between
			// it and cursor is replayed and upserted idempotently next pass.
			r.logger.Error("saving stream cursor failed", slog.Int64("cursor", cursor), slog.String("error", err.Error()))
		}
	}

	return m, passErr
}
