package storage

import (
	"database/sql"
	"time"
)

// TrendPoint is one row of the time-ordered series consumed by the chart
// renderer.
type TrendPoint struct {
	Timestamp time.Time
	BattV     float64
	TempC     float64
	PowerMw   float64
}

// channelRow mirrors the channel columns of one packets row. The nullable
// columns become explicit optionals at the storage boundary.
type channelRow struct {
	PacketID  int64
	TsMs      int64
	BatteryMv sql.NullFloat64
	CurrentMa sql.NullFloat64
	PowerMw   sql.NullFloat64
	TempCenti sql.NullFloat64
}

// anomalyRow mirrors one anomalies row.
type anomalyRow struct {
	PacketID  int64
	TsMs      sql.NullInt64
	TsISO     sql.NullString
	Tag       string
	Severity  string
	Details   sql.NullString
	CreatedMs sql.NullInt64
}
