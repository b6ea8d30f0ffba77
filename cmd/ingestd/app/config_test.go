package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
stream:
  path: /var/lib/telemetry/stream.bin
storage:
  databasePath: /var/lib/telemetry/telemetry.db
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Stream.CheckpointPath != "/var/lib/telemetry/stream.bin.cursor" {
		t.Errorf("checkpointPath = %s", config.Stream.CheckpointPath)
	}
	if config.Stream.Interval() != 5*time.Second {
		t.Errorf("interval = %v, want 5s", config.Stream.Interval())
	}

	window := config.Validation.TimeWindow()
	if !window.Min.Equal(time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("default window min = %v", window.Min)
	}
	if ranges := config.Validation.RangesOrDefault(); ranges.BatteryMv.Min != 6000 {
		t.Errorf("default battery envelope = %+v", ranges.BatteryMv)
	}

	level, err := config.Settings.Level()
	if err != nil || level != slog.LevelInfo {
		t.Errorf("default level = %v, %v", level, err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
stream:
  path: stream.bin
  checkpointPath: custom.cursor
  intervalSeconds: 0.5
validation:
  windowMin: 2026-01-01T00:00:00Z
  windowMax: 2026-02-01T00:00:00Z
  ranges:
    batteryMv: {min: 6500, max: 8000}
storage:
  databasePath: telemetry.db
server:
  enabled: true
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Stream.Interval() != 500*time.Millisecond {
		t.Errorf("interval = %v, want 500ms", config.Stream.Interval())
	}
	if window := config.Validation.TimeWindow(); window.Min.Month() != time.January {
		t.Errorf("window min = %v, want January", window.Min)
	}
	if ranges := config.Validation.RangesOrDefault(); ranges.BatteryMv.Max != 8000 {
		t.Errorf("battery envelope = %+v", ranges.BatteryMv)
	}
	if config.Server.Listen != defaultListenAddr {
		t.Errorf("listen = %s, want the default when enabled without an address", config.Server.Listen)
	}

	level, err := config.Settings.Level()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("level = %v, %v", level, err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing stream path", "storage:\n  databasePath: db\n"},
		{"missing database path", "stream:\n  path: stream.bin\n"},
		{"negative interval", "stream:\n  path: s\n  intervalSeconds: -1\nstorage:\n  databasePath: db\n"},
		{"malformed yaml", "stream: [\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
