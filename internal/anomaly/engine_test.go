package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	recent      []ChannelSample
	pending     []ChannelSample
	inserted    []Record
	insertErr   error
	sinceArgs   []int64
	recentCalls int
}

func (s *fakeStore) RecentPackets(_ context.Context, _ int) ([]ChannelSample, error) {
	s.recentCalls++
	return s.recent, nil
}

func (s *fakeStore) PacketsSince(_ context.Context, minID int64) ([]ChannelSample, error) {
	s.sinceArgs = append(s.sinceArgs, minID)

	var out []ChannelSample
	for _, p := range s.pending {
		if int64(p.PacketID) >= minID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertAnomalies(_ context.Context, records []Record) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, records...)
	return nil
}

type fakeFeed struct {
	records []Record
}

func (f *fakeFeed) Append(records []Record) error {
	f.records = append(f.records, records...)
	return nil
}

type fakeCursor struct {
	value int64
	saved []int64
}

func (c *fakeCursor) Load() (int64, error) { return c.value, nil }

func (c *fakeCursor) Save(v int64) error {
	c.value = v
	c.saved = append(c.saved, v)
	return nil
}

func f64(v float64) *float64 { return &v }

func sample(id uint32, tsMs int64, battMv, currentMa, powerMw, tempCenti float64) ChannelSample {
	return ChannelSample{
		PacketID:    id,
		TimestampMs: tsMs,
		BatteryMv:   f64(battMv),
		CurrentMa:   f64(currentMa),
		PowerMw:     f64(powerMw),
		TempCenti:   f64(tempCenti),
	}
}

func newTestEngine(t *testing.T, store *fakeStore, cursor *fakeCursor, feed *fakeFeed) *Engine {
	t.Helper()
	e, err := NewEngine(store, cursor, feed, DefaultConfig(),
		WithClock(func() time.Time { return time.UnixMilli(1764547300000) }))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngine_TempHighIsCriticalRegardlessOfWindow(t *testing.T) {
	store := &fakeStore{
		pending: []ChannelSample{sample(0, 1764547200000, 7200, 100, 720, 5100)},
	}
	cursor := &fakeCursor{}
	feed := &fakeFeed{}
	e := newTestEngine(t, store, cursor, feed)

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if stats.Evaluated != 1 || stats.Detected != 1 {
		t.Fatalf("stats = %+v, want 1 evaluated, 1 detected", stats)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1", len(store.inserted))
	}

	rec := store.inserted[0]
	if rec.Tag != TagTempHigh {
		t.Errorf("tag = %s, want %s", rec.Tag, TagTempHigh)
	}
	if rec.Severity != SeverityCritical {
		t.Errorf("severity = %s, want %s", rec.Severity, SeverityCritical)
	}
	if rec.TimestampISO != "2025-12-01T00:00:00Z" {
		t.Errorf("ts_iso = %s, want 2025-12-01T00:00:00Z", rec.TimestampISO)
	}
	if rec.CreatedMs != 1764547300000 {
		t.Errorf("created_ms = %d, want the injected clock value", rec.CreatedMs)
	}
	// With a single sample in the window the statistics are undefined.
	if rec.Detail.TMean != nil || rec.Detail.TStd != nil {
		t.Error("expected nil temperature statistics for a one-sample window")
	}
	if rec.Detail.TempCenti == nil || *rec.Detail.TempCenti != 5100 {
		t.Errorf("detail temp_centi = %v, want 5100", rec.Detail.TempCenti)
	}

	if len(feed.records) != 1 || feed.records[0].Tag != TagTempHigh {
		t.Errorf("feed records = %+v, want one TEMP_HIGH", feed.records)
	}
	if cursor.value != 1 {
		t.Errorf("cursor = %d, want 1 (next unevaluated id)", cursor.value)
	}
}

func TestEngine_CurrentSpikeAfterWarmUp(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 20; i++ {
		v := 90.0
		if i%2 == 1 {
			v = 110.0
		}
		store.recent = append(store.recent, sample(uint32(i), 1764547200000+int64(i)*1000, 7200, v, 720, 2500))
	}
	store.pending = []ChannelSample{
		sample(20, 1764547220000, 7200, 1000, 720, 2500),
		sample(21, 1764547221000, 7200, 100, 720, 2500),
	}
	cursor := &fakeCursor{value: 20}
	feed := &fakeFeed{}
	e := newTestEngine(t, store, cursor, feed)

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if stats.Evaluated != 2 {
		t.Fatalf("evaluated %d packets, want 2", stats.Evaluated)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1: %+v", len(store.inserted), store.inserted)
	}

	rec := store.inserted[0]
	if rec.Tag != TagCurrentSpike || rec.PacketID != 20 {
		t.Errorf("got (%s, packet %d), want (CURRENT_SPIKE, packet 20)", rec.Tag, rec.PacketID)
	}
	if rec.Severity != SeverityMajor {
		t.Errorf("severity = %s, want %s", rec.Severity, SeverityMajor)
	}
	if rec.Detail.IMean == nil || rec.Detail.IStd == nil {
		t.Error("expected current statistics in the detail snapshot")
	}
	if cursor.value != 22 {
		t.Errorf("cursor = %d, want 22", cursor.value)
	}
}

func TestEngine_VoltageDropAfterWarmUp(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 20; i++ {
		v := 7000.0
		if i%2 == 1 {
			v = 7400.0
		}
		store.recent = append(store.recent, sample(uint32(i), 1764547200000+int64(i)*1000, v, 100, 720, 2500))
	}
	store.pending = []ChannelSample{sample(20, 1764547220000, 5000, 100, 500, 2500)}
	cursor := &fakeCursor{value: 20}
	feed := &fakeFeed{}
	e := newTestEngine(t, store, cursor, feed)

	if _, err := e.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].Tag != TagVoltageDrop {
		t.Fatalf("inserted = %+v, want one VOLTAGE_DROP", store.inserted)
	}
}

func TestDeviationRules_BoundaryIsStrict(t *testing.T) {
	mean, stddev := 100.0, 10.0
	sigma := 3.0

	cases := []struct {
		name  string
		rule  func(v, mean, stddev *float64, sigma float64) bool
		value float64
		fire  bool
	}{
		{"exactly mean plus 3 sigma", above, 130.0, false},
		{"just over mean plus 3 sigma", above, 130.001, true},
		{"exactly mean minus 3 sigma", below, 70.0, false},
		{"just under mean minus 3 sigma", below, 69.999, true},
		{"at the mean", above, 100.0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule(&tc.value, &mean, &stddev, sigma); got != tc.fire {
				t.Errorf("rule(%v) = %v, want %v", tc.value, got, tc.fire)
			}
		})
	}

	// Undefined statistics or a degenerate deviation never fire, however
	// extreme the value.
	huge := 1e9
	if above(&huge, nil, nil, sigma) {
		t.Error("rule fired with undefined statistics")
	}
	zero := 0.0
	if above(&huge, &mean, &zero, sigma) {
		t.Error("rule fired with zero standard deviation")
	}
	if below(nil, &mean, &stddev, sigma) {
		t.Error("rule fired with an absent channel value")
	}
}

func TestEngine_StableChannelNeverFires(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 10; i++ {
		store.recent = append(store.recent, sample(uint32(i), 1764547200000+int64(i)*1000, 7200, 100, 720, 2500))
	}
	store.pending = []ChannelSample{sample(10, 1764547210000, 7200, 100, 720, 2500)}
	cursor := &fakeCursor{value: 10}
	e := newTestEngine(t, store, cursor, &fakeFeed{})

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if stats.Detected != 0 {
		t.Errorf("detected %d anomalies on a flat stream, want 0: %+v", stats.Detected, store.inserted)
	}
}

func TestEngine_CursorAdvancesDespiteInsertFailure(t *testing.T) {
	store := &fakeStore{
		pending:   []ChannelSample{sample(7, 1764547200000, 7200, 100, 720, 5100)},
		insertErr: errors.New("disk full"),
	}
	cursor := &fakeCursor{value: 7}
	feed := &fakeFeed{}
	e := newTestEngine(t, store, cursor, feed)

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass should not fail on an insert error, got: %v", err)
	}
	if stats.Detected != 1 {
		t.Errorf("detected = %d, want 1", stats.Detected)
	}
	if cursor.value != 8 {
		t.Errorf("cursor = %d, want 8 despite the failed insert", cursor.value)
	}
	if len(feed.records) != 1 {
		t.Errorf("feed records = %d, want 1 despite the failed insert", len(feed.records))
	}
}

func TestEngine_ResumesFromCursor(t *testing.T) {
	store := &fakeStore{
		pending: []ChannelSample{
			sample(3, 1764547200000, 7200, 100, 720, 5100),
			sample(7, 1764547201000, 7200, 100, 720, 5100),
		},
	}
	cursor := &fakeCursor{value: 5}
	e := newTestEngine(t, store, cursor, &fakeFeed{})

	stats, err := e.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if len(store.sinceArgs) != 1 || store.sinceArgs[0] != 5 {
		t.Errorf("PacketsSince called with %v, want [5]", store.sinceArgs)
	}
	if stats.Evaluated != 1 {
		t.Errorf("evaluated %d packets, want 1 (id 3 is behind the cursor)", stats.Evaluated)
	}
	if cursor.value != 8 {
		t.Errorf("cursor = %d, want 8", cursor.value)
	}
}

func TestEngine_EmptyPassWarmsUpOnceAndSavesNothing(t *testing.T) {
	store := &fakeStore{}
	cursor := &fakeCursor{}
	e := newTestEngine(t, store, cursor, &fakeFeed{})

	for i := 0; i < 2; i++ {
		stats, err := e.RunPass(context.Background())
		if err != nil {
			t.Fatalf("RunPass failed: %v", err)
		}
		if stats.Evaluated != 0 || stats.Detected != 0 {
			t.Errorf("stats = %+v, want all zero", stats)
		}
	}

	if store.recentCalls != 1 {
		t.Errorf("warm-up ran %d times, want 1", store.recentCalls)
	}
	if len(cursor.saved) != 0 {
		t.Errorf("cursor saved %v, want no saves on empty passes", cursor.saved)
	}
}
