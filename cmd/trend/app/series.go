package app

import (
	"time"

	"github.com/vdp-1/cubesat-telemetry/internal/storage"
)

// ChannelSeries is one telemetry channel prepared for charting, with its
// observed value bounds.
type ChannelSeries struct {
	Name   string
	Unit   string
	Values []float64
	Min    float64
	Max    float64
}

func (s *ChannelSeries) append(v float64) {
	if len(s.Values) == 0 || v < s.Min {
		s.Min = v
	}
	if len(s.Values) == 0 || v > s.Max {
		s.Max = v
	}
	s.Values = append(s.Values, v)
}

// TrendData holds the derived-unit telemetry series over one time range,
// aligned by sample index.
type TrendData struct {
	Times []time.Time
	Start time.Time
	End   time.Time

	Battery ChannelSeries
	Temp    ChannelSeries
	Power   ChannelSeries
}

// NewTrendData aggregates stored trend points into per-channel series.
func NewTrendData(points []storage.TrendPoint) *TrendData {
	d := TrendData{
		Battery: ChannelSeries{Name: "Battery voltage", Unit: "V"},
		Temp:    ChannelSeries{Name: "Temperature", Unit: "°C"},
		Power:   ChannelSeries{Name: "Power", Unit: "W"},
	}

	for _, p := range points {
		d.Times = append(d.Times, p.Timestamp)
		d.Battery.append(p.BattV)
		d.Temp.append(p.TempC)
		d.Power.append(p.PowerMw / 1000)
	}

	if len(d.Times) > 0 {
		d.Start = d.Times[0]
		d.End = d.Times[len(d.Times)-1]
	}
	return &d
}

// Len returns the number of samples in the series.
func (d *TrendData) Len() int {
	return len(d.Times)
}

func (d *TrendData) panels() []*ChannelSeries {
	return []*ChannelSeries{&d.Battery, &d.Temp, &d.Power}
}
