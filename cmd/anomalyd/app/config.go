package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
)

const (
	defaultIntervalSeconds = 5.0
	defaultListenAddr      = ":8081"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Engine   EngineConfig  `yaml:"engine"`
	Storage  StorageConfig `yaml:"storage"`
	Feed     FeedConfig    `yaml:"feed"`
	Server   ServerConfig  `yaml:"server"`
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

// EngineConfig tunes the detection rules and the evaluation cadence. Zero
// values keep the mission defaults.
type EngineConfig struct {
	WindowSize      int      `yaml:"windowSize"`
	Sigma           float64  `yaml:"sigma"`
	TempHighCenti   *float64 `yaml:"tempHighCenti"`
	TempLowCenti    *float64 `yaml:"tempLowCenti"`
	CheckpointPath  string   `yaml:"checkpointPath"`
	IntervalSeconds float64  `yaml:"intervalSeconds"`
}

// Interval returns the pause between evaluation passes.
func (c EngineConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// EngineSettings maps the configuration onto the engine tuning, filling in
// defaults for unset fields.
func (c EngineConfig) EngineSettings() anomaly.Config {
	settings := anomaly.DefaultConfig()
	if c.WindowSize != 0 {
		settings.WindowSize = c.WindowSize
	}
	if c.Sigma != 0 {
		settings.Sigma = c.Sigma
	}
	if c.TempHighCenti != nil {
		settings.TempHighCenti = *c.TempHighCenti
	}
	if c.TempLowCenti != nil {
		settings.TempLowCenti = *c.TempLowCenti
	}
	return settings
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"databasePath"`
}

// FeedConfig locates the append-only anomaly event feed
type FeedConfig struct {
	Path string `yaml:"path"`
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

	if config.Storage.DatabasePath == "" {
		return nil, fmt.Errorf("storage.databasePath is required")
	}
	if config.Feed.Path == "" {
		return nil, fmt.Errorf("feed.path is required")
	}
	if config.Engine.IntervalSeconds < 0 {
		return nil, fmt.Errorf("engine.intervalSeconds must not be negative")
	}

	if config.Engine.CheckpointPath == "" {
		config.Engine.CheckpointPath = config.Storage.DatabasePath + ".anomaly-cursor"
	}
	if config.Engine.IntervalSeconds == 0 {
		config.Engine.IntervalSeconds = defaultIntervalSeconds
	}
	if config.Server.Enabled && config.Server.Listen == "" {
		config.Server.Listen = defaultListenAddr
	}

	return &config, nil
}
