package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vdp-1/cubesat-telemetry/internal/ingest"
)

const (
	defaultIntervalSeconds = 5.0
	defaultListenAddr      = ":8080"
)

// Config represents the main application configuration
type Config struct {
	Settings   Settings         `yaml:"settings"`
	Stream     StreamConfig     `yaml:"stream"`
	Validation ValidationConfig `yaml:"validation"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Server     ServerConfig     `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() (slog.Level, error) {
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level '%s': %w", s.LogLevel, err)
	}
	return level, nil
}

// StreamConfig locates the telemetry stream and the reader's cursor file
type StreamConfig struct {
	Path            string  `yaml:"path"`
	CheckpointPath  string  `yaml:"checkpointPath"`
	IntervalSeconds float64 `yaml:"intervalSeconds"`
}

// Interval returns the pause between ingestion passes.
func (c StreamConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// ValidationConfig overrides the validator defaults. Zero values keep the
// mission defaults.
type ValidationConfig struct {
	WindowMin time.Time      `yaml:"windowMin"`
	WindowMax time.Time      `yaml:"windowMax"`
	Ranges    *ingest.Ranges `yaml:"ranges"`
}

// TimeWindow returns the configured calendar window, or the mission default.
func (c ValidationConfig) TimeWindow() ingest.TimeWindow {
	if c.WindowMin.IsZero() || c.WindowMax.IsZero() {
		return ingest.DefaultTimeWindow()
	}
	return ingest.TimeWindow{Min: c.WindowMin.UTC(), Max: c.WindowMax.UTC()}
}

// RangesOrDefault returns the configured operating envelopes, or the mission
// defaults.
func (c ValidationConfig) RangesOrDefault() ingest.Ranges {
	if c.Ranges == nil {
		return ingest.DefaultRanges()
	}
	return *c.Ranges
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"databasePath"`
}

// MetricsConfig represents the per-pass CSV log settings
type MetricsConfig struct {
	PassLogPath string `yaml:"passLogPath"`
}

// ServerConfig represents the operational HTTP server settings
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Stream.Path == "" {
		return nil, fmt.Errorf("stream.path is required")
	}
	if config.Storage.DatabasePath == "" {
		return nil, fmt.Errorf("storage.databasePath is required")
	}
	if config.Stream.IntervalSeconds < 0 {
		return nil, fmt.Errorf("stream.intervalSeconds must not be negative")
	}

	if config.Stream.CheckpointPath == "" {
		config.Stream.CheckpointPath = config.Stream.Path + ".cursor"
	}
	if config.Stream.IntervalSeconds == 0 {
		config.Stream.IntervalSeconds = defaultIntervalSeconds
	}
	if config.Server.Enabled && config.Server.Listen == "" {
		config.Server.Listen = defaultListenAddr
	}

	return &config, nil
}
