package storage

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
	"github.com/vdp-1/cubesat-telemetry/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && cErr != sql.ErrTxDone {
		*err = cErr
	}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// packetArgs flattens an enriched packet into the upsert parameter list, in
// column order.
func packetArgs(p *telemetry.EnrichedPacket) []any {
	return []any{
		int64(p.ID),
		int64(p.TimestampMs),
		p.Timestamp.Format(time.RFC3339Nano),
		int64(p.Magic),
		int64(p.BatteryMv),
		p.BattV,
		int64(p.BattCurrentMa),
		int64(p.SocPercent),
		int64(p.TempCenti),
		p.TempC,
		int64(p.SolarMa),
		int64(p.AltitudeM),
		int64(p.ErrorFlags),
		int64(p.Checksum),
		boolInt(p.IntegrityOK),
		boolInt(p.FramingOK),
		int64(p.ValidationFlags),
		int64(p.MissingPackets),
		boolInt(p.Anomaly),
		strings.Join(p.Reasons, ","),
		p.PowerMw,
		nullFloat(p.DeltaBattV),
		nullFloat(p.DeltaTempC),
		nullInt(p.TimeDeltaMs),
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toChannelSample(r channelRow) anomaly.ChannelSample {
	return anomaly.ChannelSample{
		PacketID:    uint32(r.PacketID),
		TimestampMs: r.TsMs,
		BatteryMv:   floatPtr(r.BatteryMv),
		CurrentMa:   floatPtr(r.CurrentMa),
		PowerMw:     floatPtr(r.PowerMw),
		TempCenti:   floatPtr(r.TempCenti),
	}
}

func toAnomalyRecord(r anomalyRow) anomaly.Record {
	rec := anomaly.Record{
		PacketID:     uint32(r.PacketID),
		TimestampMs:  r.TsMs.Int64,
		TimestampISO: r.TsISO.String,
		Tag:          anomaly.Tag(r.Tag),
		Severity:     anomaly.Severity(r.Severity),
		CreatedMs:    r.CreatedMs.Int64,
	}
	if r.Details.Valid {
		// A detail payload that fails to parse stays empty; the row itself
		// is still returned.
		_ = json.Unmarshal([]byte(r.Details.String), &rec.Detail)
	}
	return rec
}
