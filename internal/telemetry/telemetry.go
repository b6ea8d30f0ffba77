// Package telemetry defines the enriched housekeeping record produced by the
// validation stage and persisted by the pipeline.
package telemetry

import (
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/packet"
)

// Validation flag bits recorded on a persisted packet. These are metadata,
// not drop reasons: a flagged packet is still stored.
const (
	FlagTimestampBad uint16 = 1 << 1
	FlagIDGap        uint16 = 1 << 2
	FlagSanityRange  uint16 = 1 << 3
)

// EnrichedPacket is a wire packet augmented with integrity results, derived
// physical units, deltas against the previously persisted packet, and
// validation metadata. Deltas are nil when there is no previous packet.
type EnrichedPacket struct {
	packet.RawPacket

	Timestamp   time.Time `json:"timestamp"`   // TimestampMs as UTC time
	IntegrityOK bool      `json:"integrityOk"` // trailing checksum matched
	FramingOK   bool      `json:"framingOk"`   // magic marker matched

	ValidationFlags uint16 `json:"validationFlags"`
	MissingPackets  uint32 `json:"missingPackets,omitempty"` // id-gap size, 0 when contiguous

	BattV   float64 `json:"battV"`   // battery voltage in volts
	TempC   float64 `json:"tempC"`   // temperature in degrees Celsius
	PowerMw float64 `json:"powerMw"` // instantaneous power, volts x mA

	DeltaBattV  *float64 `json:"deltaBattV,omitempty"`
	DeltaTempC  *float64 `json:"deltaTempC,omitempty"`
	TimeDeltaMs *int64   `json:"timeDeltaMs,omitempty"`

	Anomaly bool     `json:"anomaly"`           // aggregate of ts-bad, sanity, device flags
	Reasons []string `json:"reasons,omitempty"` // one human-readable token per condition
}

// Previous captures the fields of the most recently persisted packet that
// the validator compares the next packet against.
type Previous struct {
	ID          uint32
	TimestampMs uint64
	BattV       float64
	TempC       float64
}

// TimestampBad reports whether the timestamp validation flag is set.
func (p *EnrichedPacket) TimestampBad() bool { return p.ValidationFlags&FlagTimestampBad != 0 }

// IDGap reports whether an id-gap against the previous persisted packet
// was detected.
func (p *EnrichedPacket) IDGap() bool { return p.ValidationFlags&FlagIDGap != 0 }

// SanityRangeBad reports whether any channel fell outside its operating
// envelope.
func (p *EnrichedPacket) SanityRangeBad() bool { return p.ValidationFlags&FlagSanityRange != 0 }
