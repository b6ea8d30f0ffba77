package ingest

import (
	"strings"
	"testing"

	"github.com/vdp-1/cubesat-telemetry/internal/packet"
	"github.com/vdp-1/cubesat-telemetry/internal/telemetry"
)

// dec1 is 2025-12-01T00:00:00Z, the start of the default mission window.
const dec1 = uint64(1764547200000)

func nominalPacket(id uint32, tsMs uint64) packet.RawPacket {
	return packet.RawPacket{
		Magic:         packet.Magic,
		ID:            id,
		TimestampMs:   tsMs,
		BatteryMv:     7400,
		BattCurrentMa: -150,
		SocPercent:    85,
		TempCenti:     2150,
		SolarMa:       320,
		AltitudeM:     420000,
	}
}

func enrich(p packet.RawPacket, prev *telemetry.Previous) *telemetry.EnrichedPacket {
	v := NewValidator(DefaultTimeWindow(), DefaultRanges())
	return v.Enrich(packet.Result{Packet: p, FramingOK: true, IntegrityOK: true}, prev)
}

func hasReason(e *telemetry.EnrichedPacket, substr string) bool {
	for _, r := range e.Reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestEnrich_NominalPacket(t *testing.T) {
	e := enrich(nominalPacket(0, dec1), nil)

	if e.Anomaly {
		t.Errorf("nominal packet flagged anomalous: %v", e.Reasons)
	}
	if e.ValidationFlags != 0 {
		t.Errorf("validation flags = %#x, want 0", e.ValidationFlags)
	}
	if e.BattV != 7.4 {
		t.Errorf("battV = %v, want 7.4", e.BattV)
	}
	if e.TempC != 21.5 {
		t.Errorf("tempC = %v, want 21.5", e.TempC)
	}
	if want := 7.4 * -150; e.PowerMw != want {
		t.Errorf("powerMw = %v, want %v", e.PowerMw, want)
	}
	if e.DeltaBattV != nil || e.DeltaTempC != nil || e.TimeDeltaMs != nil {
		t.Error("expected nil deltas at the start of history")
	}
}

func TestEnrich_Deltas(t *testing.T) {
	prev := &telemetry.Previous{ID: 4, TimestampMs: dec1, BattV: 7.4, TempC: 21.5}
	p := nominalPacket(5, dec1+1000)
	p.BatteryMv = 7300
	p.TempCenti = 2250
	e := enrich(p, prev)

	if e.DeltaBattV == nil || *e.DeltaBattV != 7.3-7.4 {
		t.Errorf("deltaBattV = %v, want -0.1", e.DeltaBattV)
	}
	if e.DeltaTempC == nil || *e.DeltaTempC != 22.5-21.5 {
		t.Errorf("deltaTempC = %v, want 1", e.DeltaTempC)
	}
	if e.TimeDeltaMs == nil || *e.TimeDeltaMs != 1000 {
		t.Errorf("timeDeltaMs = %v, want 1000", e.TimeDeltaMs)
	}
}

func TestEnrich_TimestampWindow(t *testing.T) {
	cases := []struct {
		name string
		tsMs uint64
		bad  bool
	}{
		{"start of window", dec1, false},
		{"mid window", dec1 + 15*24*3600*1000, false},
		{"before window", dec1 - 1, true},
		{"start of next month", dec1 + 31*24*3600*1000, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := enrich(nominalPacket(0, tc.tsMs), nil)
			if e.TimestampBad() != tc.bad {
				t.Errorf("TimestampBad = %v, want %v (reasons: %v)", e.TimestampBad(), tc.bad, e.Reasons)
			}
			if tc.bad && !e.Anomaly {
				t.Error("out-of-window timestamp should flag the packet anomalous")
			}
		})
	}
}

func TestEnrich_NonMonotonicTimestamp(t *testing.T) {
	prev := &telemetry.Previous{ID: 9, TimestampMs: dec1 + 1000}
	e := enrich(nominalPacket(10, dec1+1000), prev)

	if !e.TimestampBad() {
		t.Error("equal timestamp should be flagged as not increasing")
	}
	if !hasReason(e, "ts_not_increasing") {
		t.Errorf("reasons = %v, want ts_not_increasing", e.Reasons)
	}
	if !e.Anomaly {
		t.Error("non-monotonic timestamp should flag the packet anomalous")
	}
}

func TestEnrich_IDGap(t *testing.T) {
	prev := &telemetry.Previous{ID: 11, TimestampMs: dec1}
	e := enrich(nominalPacket(13, dec1+2000), prev)

	if !e.IDGap() {
		t.Error("expected the id-gap flag for 11 -> 13")
	}
	if e.MissingPackets != 1 {
		t.Errorf("missingPackets = %d, want 1", e.MissingPackets)
	}
	if !hasReason(e, "id_gap(prev=11, cur=13, missing=1)") {
		t.Errorf("reasons = %v, want the id_gap token", e.Reasons)
	}
	// A gap alone is bookkeeping, not an anomaly.
	if e.Anomaly {
		t.Errorf("id gap alone should not flag the packet anomalous: %v", e.Reasons)
	}
}

func TestEnrich_ContiguousAndDuplicateIDs(t *testing.T) {
	prev := &telemetry.Previous{ID: 11, TimestampMs: dec1}

	if e := enrich(nominalPacket(12, dec1+1000), prev); e.IDGap() {
		t.Error("contiguous id flagged as a gap")
	}
	if e := enrich(nominalPacket(11, dec1+1000), prev); e.IDGap() || e.MissingPackets != 0 {
		t.Error("duplicate id flagged as a gap")
	}
}

func TestEnrich_SanityRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*packet.RawPacket)
		reason string
	}{
		{"battery low", func(p *packet.RawPacket) { p.BatteryMv = 5999 }, "battery_voltage_out_of_operating_range"},
		{"battery high", func(p *packet.RawPacket) { p.BatteryMv = 8401 }, "battery_voltage_out_of_operating_range"},
		{"current", func(p *packet.RawPacket) { p.BattCurrentMa = -2001 }, "current_out_of_operating_range"},
		{"soc", func(p *packet.RawPacket) { p.SocPercent = 101 }, "soc_out_of_operating_range"},
		{"temp high", func(p *packet.RawPacket) { p.TempCenti = 5001 }, "temp_out_of_range"},
		{"temp low", func(p *packet.RawPacket) { p.TempCenti = -2001 }, "temp_out_of_range"},
		{"solar", func(p *packet.RawPacket) { p.SolarMa = 601 }, "solar_current_out_of_operating_range"},
		{"altitude low", func(p *packet.RawPacket) { p.AltitudeM = 299999 }, "alt_out_of_operating_range"},
		{"altitude high", func(p *packet.RawPacket) { p.AltitudeM = 600001 }, "alt_out_of_operating_range"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := nominalPacket(0, dec1)
			tc.mutate(&p)
			e := enrich(p, nil)

			if !e.SanityRangeBad() {
				t.Fatal("expected the sanity-range flag")
			}
			if !hasReason(e, tc.reason) {
				t.Errorf("reasons = %v, want %s", e.Reasons, tc.reason)
			}
			if !e.Anomaly {
				t.Error("sanity-range violation should flag the packet anomalous")
			}
		})
	}
}

func TestEnrich_BoundaryValuesAreClean(t *testing.T) {
	p := nominalPacket(0, dec1)
	p.BatteryMv = 6000
	p.BattCurrentMa = 2000
	p.SocPercent = 100
	p.TempCenti = 5000
	p.SolarMa = 600
	p.AltitudeM = 600000

	if e := enrich(p, nil); e.SanityRangeBad() {
		t.Errorf("inclusive envelope boundaries flagged: %v", e.Reasons)
	}
}

func TestEnrich_ErrorFlags(t *testing.T) {
	p := nominalPacket(0, dec1)
	p.ErrorFlags = packet.FlagUndervoltage | packet.FlagHighTemperature

	e := enrich(p, nil)
	if !e.Anomaly {
		t.Error("device error flags should flag the packet anomalous")
	}
	if !hasReason(e, "error_flags_0x000C") {
		t.Errorf("reasons = %v, want error_flags_0x000C", e.Reasons)
	}
	if e.ValidationFlags != 0 {
		t.Errorf("device flags should not set validation flags, got %#x", e.ValidationFlags)
	}
}
