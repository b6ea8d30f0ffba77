// Package storage persists enriched telemetry packets and detected anomalies
// in a SQLite database. Packets are keyed by producer-assigned packet id and
// upserted idempotently; anomalies are deduplicated by a unique
// (packet_id, tag) index so re-evaluation of a packet range is a no-op.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
	"github.com/vdp-1/cubesat-telemetry/internal/telemetry"
)

// SqliteStore handles database operations. Write and read connections are
// opened lazily and independently; the schema is initialized on first write.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the SQLite database at dbPath. No
// connection is opened until the first operation.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		// Reads go through the write DSN too: the read-only mode fails on a
		// database the writer has not created yet, and both jobs run in one
		// process per store.
		db, err := s.getWriteDB()
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// UpsertPacket inserts or replaces one enriched packet keyed by packet id.
// Replaying a stream range after a crash re-derives identical rows, so the
// replace is harmless.
func (s *SqliteStore) UpsertPacket(ctx context.Context, p *telemetry.EnrichedPacket) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertPacketSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, packetArgs(p)...); err != nil {
		return fmt.Errorf("upserting packet %d: %w", p.ID, err)
	}
	return nil
}

// LatestPacket returns the most recently persisted packet's validation
// context, or nil when the store is empty.
func (s *SqliteStore) LatestPacket(ctx context.Context) (prev *telemetry.Previous, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectLatestPacketSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var p telemetry.Previous
	var id, tsMs int64
	if err = stmt.QueryRowContext(ctx).Scan(&id, &tsMs, &p.BattV, &p.TempC); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning latest packet: %w", err)
	}

	p.ID = uint32(id)
	p.TimestampMs = uint64(tsMs)
	return &p, nil
}

// PacketsSince returns the channel samples of every persisted packet with an
// id greater than or equal to minID, in ascending id order.
func (s *SqliteStore) PacketsSince(ctx context.Context, minID int64) ([]anomaly.ChannelSample, error) {
	return s.queryChannelSamples(ctx, selectPacketsSinceSQL, minID)
}

// RecentPackets returns the channel samples of the most recent limit packets
// in ascending id order, for window warm-up on cold start.
func (s *SqliteStore) RecentPackets(ctx context.Context, limit int) ([]anomaly.ChannelSample, error) {
	return s.queryChannelSamples(ctx, selectRecentPacketsSQL, limit)
}

func (s *SqliteStore) queryChannelSamples(ctx context.Context, query string, arg any) (samples []anomaly.ChannelSample, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying packets: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r channelRow
		if err = rows.Scan(&r.PacketID, &r.TsMs, &r.BatteryMv, &r.CurrentMa, &r.PowerMw, &r.TempCenti); err != nil {
			return nil, fmt.Errorf("scanning packet row: %w", err)
		}
		samples = append(samples, toChannelSample(r))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating packet rows: %w", err)
	}
	return samples, nil
}

// InsertAnomalies persists a batch of anomaly records in one transaction.
// Records whose (packet_id, tag) already exist are ignored, making repeated
// insertion attempts idempotent. On any failure the whole batch rolls back.
func (s *SqliteStore) InsertAnomalies(ctx context.Context, records []anomaly.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertAnomalySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, rec := range records {
		details, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("marshaling anomaly detail: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			int64(rec.PacketID),
			rec.TimestampMs,
			rec.TimestampISO,
			string(rec.Tag),
			string(rec.Severity),
			string(details),
			rec.CreatedMs,
		)
		if err != nil {
			return fmt.Errorf("inserting anomaly (packet=%d, tag=%s): %w", rec.PacketID, rec.Tag, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RecentAnomalies returns up to limit anomaly records, newest first.
func (s *SqliteStore) RecentAnomalies(ctx context.Context, limit int) (records []anomaly.Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRecentAnomaliesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("querying anomalies: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r anomalyRow
		if err = rows.Scan(&r.PacketID, &r.TsMs, &r.TsISO, &r.Tag, &r.Severity, &r.Details, &r.CreatedMs); err != nil {
			return nil, fmt.Errorf("scanning anomaly row: %w", err)
		}
		records = append(records, toAnomalyRecord(r))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating anomaly rows: %w", err)
	}
	return records, nil
}

// Trend returns the derived-unit series between from and to (inclusive),
// ordered by timestamp, for offline chart rendering.
func (s *SqliteStore) Trend(ctx context.Context, from, to time.Time) (points []TrendPoint, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectTrendSQL, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying trend: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var tsMs int64
		var battV, tempC, powerMw sql.NullFloat64
		if err = rows.Scan(&tsMs, &battV, &tempC, &powerMw); err != nil {
			return nil, fmt.Errorf("scanning trend row: %w", err)
		}
		points = append(points, TrendPoint{
			Timestamp: time.UnixMilli(tsMs).UTC(),
			BattV:     battV.Float64,
			TempC:     tempC.Float64,
			PowerMw:   powerMw.Float64,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trend rows: %w", err)
	}
	return points, nil
}

// Close closes the database connections.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.writeDB != nil {
			if err := s.writeDB.Close(); err != nil {
				errs = append(errs, err)
			}
			s.writeDB = nil
			s.readDB = nil
		}
		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}
