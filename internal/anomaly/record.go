package anomaly

// Tag identifies which detection rule fired. The vocabulary is fixed; the
// persistence layer enforces uniqueness per (packet id, tag).
type Tag string

const (
	TagVoltageDrop  Tag = "VOLTAGE_DROP"
	TagCurrentSpike Tag = "CURRENT_SPIKE"
	TagPowerSpike   Tag = "POWER_SPIKE"
	TagTempHigh     Tag = "TEMP_HIGH"
	TagTempLow      Tag = "TEMP_LOW"
	TagTempRise     Tag = "TEMP_RISE"
)

// Severity classifies an anomaly. Fixed-threshold temperature rules are
// critical; statistical deviations are major.
type Severity string

const (
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Detail is the snapshot of raw channel values and window statistics at the
// moment a rule fired. Nil fields were absent or undefined (window < 2
// samples) at evaluation time.
type Detail struct {
	BatteryMv *float64 `json:"battery_mv"`
	CurrentMa *float64 `json:"batt_current_ma"`
	PowerMw   *float64 `json:"power_mw"`
	TempCenti *float64 `json:"temp_centi"`

	VMean *float64 `json:"v_mean"`
	VStd  *float64 `json:"v_std"`
	IMean *float64 `json:"i_mean"`
	IStd  *float64 `json:"i_std"`
	PMean *float64 `json:"p_mean"`
	PStd  *float64 `json:"p_std"`
	TMean *float64 `json:"t_mean"`
	TStd  *float64 `json:"t_std"`
}

// Record is one detected anomaly, persisted to the anomaly table and
// appended to the event feed.
type Record struct {
	PacketID     uint32   `json:"packet_id"`
	TimestampMs  int64    `json:"ts_ms"`
	TimestampISO string   `json:"ts_iso"`
	Tag          Tag      `json:"tag"`
	Severity     Severity `json:"severity"`
	Detail       Detail   `json:"details"`
	CreatedMs    int64    `json:"created_ms"`
}

// ChannelSample carries the channel values of one persisted packet into the
// engine. Every channel is an explicit optional: a nil value is skipped, it
// is never coerced to zero.
type ChannelSample struct {
	PacketID    uint32
	TimestampMs int64
	BatteryMv   *float64
	CurrentMa   *float64
	PowerMw     *float64
	TempCenti   *float64
}
