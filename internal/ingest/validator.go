package ingest

import (
	"fmt"
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/packet"
	"github.com/vdp-1/cubesat-telemetry/internal/telemetry"
)

// Range is an inclusive physical operating envelope for one channel.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges holds the per-channel operating envelopes used by the sanity check.
type Ranges struct {
	BatteryMv  Range `yaml:"batteryMv"`
	CurrentMa  Range `yaml:"currentMa"`
	SocPercent Range `yaml:"socPercent"`
	TempCenti  Range `yaml:"tempCenti"`
	SolarMa    Range `yaml:"solarMa"`
	AltitudeM  Range `yaml:"altitudeM"`
}

// DefaultRanges returns the spacecraft operating envelopes from the mission
// telemetry parameters sheet.
func DefaultRanges() Ranges {
	return Ranges{
		BatteryMv:  Range{Min: 6000, Max: 8400},
		CurrentMa:  Range{Min: -2000, Max: 2000},
		SocPercent: Range{Min: 0, Max: 100},
		TempCenti:  Range{Min: -2000, Max: 5000},
		SolarMa:    Range{Min: 0, Max: 600},
		AltitudeM:  Range{Min: 300000, Max: 600000},
	}
}

// TimeWindow is the acceptable calendar window for packet timestamps.
type TimeWindow struct {
	Min time.Time `yaml:"min"`
	Max time.Time `yaml:"max"`
}

// DefaultTimeWindow covers the simulated mission month (December 2025).
func DefaultTimeWindow() TimeWindow {
	return TimeWindow{
		Min: time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
		Max: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (w TimeWindow) contains(t time.Time) bool {
	return !t.Before(w.Min) && t.Before(w.Max)
}

// Validator turns decoded packets into enriched records: derived units,
// deltas against the previous persisted packet, and validation flags. It
// never drops a packet; framing and integrity failures are handled by the
// caller before enrichment.
type Validator struct {
	window TimeWindow
	ranges Ranges
}

// NewValidator creates a validator with the given calendar window and
// channel envelopes.
func NewValidator(window TimeWindow, ranges Ranges) *Validator {
	return &Validator{window: window, ranges: ranges}
}

// Enrich builds the enriched record for one decoded packet. prev is the most
// recently persisted packet, or nil at the start of history; deltas and
// ordering checks are skipped without it.
func (v *Validator) Enrich(res packet.Result, prev *telemetry.Previous) *telemetry.EnrichedPacket {
	p := res.Packet
	e := &telemetry.EnrichedPacket{
		RawPacket:   p,
		Timestamp:   p.Timestamp(),
		IntegrityOK: res.IntegrityOK,
		FramingOK:   res.FramingOK,
		BattV:       float64(p.BatteryMv) / 1000,
		TempC:       float64(p.TempCenti) / 100,
	}
	e.PowerMw = e.BattV * float64(p.BattCurrentMa)

	if !v.window.contains(e.Timestamp) {
		e.ValidationFlags |= telemetry.FlagTimestampBad
		e.Reasons = append(e.Reasons, fmt.Sprintf("ts_out_of_window (%s)", e.Timestamp.Format(time.RFC3339)))
	}

	if prev != nil {
		if p.TimestampMs <= prev.TimestampMs {
			e.ValidationFlags |= telemetry.FlagTimestampBad
			e.Reasons = append(e.Reasons, fmt.Sprintf("ts_not_increasing (prev_ts_ms=%d)", prev.TimestampMs))
		}

		if p.ID > prev.ID+1 {
			gap := p.ID - prev.ID - 1
			e.ValidationFlags |= telemetry.FlagIDGap
			e.MissingPackets = gap
			e.Reasons = append(e.Reasons, fmt.Sprintf("id_gap(prev=%d, cur=%d, missing=%d)", prev.ID, p.ID, gap))
		}

		deltaV := e.BattV - prev.BattV
		deltaT := e.TempC - prev.TempC
		deltaMs := int64(p.TimestampMs) - int64(prev.TimestampMs)
		e.DeltaBattV = &deltaV
		e.DeltaTempC = &deltaT
		e.TimeDeltaMs = &deltaMs
	}

	v.checkRanges(e)

	// An id gap alone is not an anomaly; missing packets show up in the
	// pass metrics instead.
	e.Anomaly = e.TimestampBad() || e.SanityRangeBad() || p.ErrorFlags != 0
	if p.ErrorFlags != 0 {
		e.Reasons = append(e.Reasons, fmt.Sprintf("error_flags_0x%04X", p.ErrorFlags))
	}

	return e
}

func (v *Validator) checkRanges(e *telemetry.EnrichedPacket) {
	checks := []struct {
		r      Range
		value  float64
		reason string
	}{
		{v.ranges.BatteryMv, float64(e.BatteryMv), "battery_voltage_out_of_operating_range(%v)"},
		{v.ranges.CurrentMa, float64(e.BattCurrentMa), "current_out_of_operating_range(%v)"},
		{v.ranges.SocPercent, float64(e.SocPercent), "soc_out_of_operating_range(%v)"},
		{v.ranges.TempCenti, float64(e.TempCenti), "temp_out_of_range(%v)"},
		{v.ranges.SolarMa, float64(e.SolarMa), "solar_current_out_of_operating_range(%v)"},
		{v.ranges.AltitudeM, float64(e.AltitudeM), "alt_out_of_operating_range(%v)"},
	}

	for _, c := range checks {
		if !c.r.contains(c.value) {
			e.ValidationFlags |= telemetry.FlagSanityRange
			e.Reasons = append(e.Reasons, fmt.Sprintf(c.reason, c.value))
		}
	}
}
