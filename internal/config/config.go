package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-yaml"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir    string           `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	Stream     string           `json:"stream" yaml:"stream" env:"STREAM"`
	Fsync      string           `json:"fsync" yaml:"fsync" env:"FSYNC"`
	Log        LogConfig        `json:"log" yaml:"log" envPrefix:"LOG_"`
	Batch      BatchConfig      `json:"batch" yaml:"batch" envPrefix:"BATCH_"`
	Store      StoreConfig      `json:"store" yaml:"store" envPrefix:"STORE_"`
	Replay     ReplayConfig     `json:"replay" yaml:"replay" envPrefix:"REPLAY_"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" env:"FORMAT"`
}

// BatchConfig bounds batch accumulation.
type BatchConfig struct {
	MaxRecords      int `json:"maxRecords" yaml:"maxRecords" env:"MAX_RECORDS"`
	MaxBytes        int `json:"maxBytes" yaml:"maxBytes" env:"MAX_BYTES"`
	FlushIntervalMs int `json:"flushIntervalMs" yaml:"flushIntervalMs" env:"FLUSH_INTERVAL_MS"`
}

// StoreConfig bounds the batch store path.
type StoreConfig struct {
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
}

// ReplayConfig bounds range replay fetching and retries.
type ReplayConfig struct {
	BackoffBaseMs int `json:"backoffBaseMs" yaml:"backoffBaseMs" env:"BACKOFF_BASE_MS"`
	MaxRetries    int `json:"maxRetries" yaml:"maxRetries" env:"MAX_RETRIES"`
	MaxElapsedMs  int `json:"maxElapsedMs" yaml:"maxElapsedMs" env:"MAX_ELAPSED_MS"`
}

// CheckpointConfig selects the checkpoint backend and cadence.
type CheckpointConfig struct {
	IntervalMs  int    `json:"intervalMs" yaml:"intervalMs" env:"INTERVAL_MS"`
	Driver      string `json:"driver" yaml:"driver" env:"DRIVER"`
	PostgresDSN string `json:"postgresDsn" yaml:"postgresDsn" env:"POSTGRES_DSN"`
	Table       string `json:"table" yaml:"table" env:"TABLE"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Stream:  "default",
		Fsync:   "interval",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Batch: BatchConfig{
			MaxRecords:      500,
			MaxBytes:        4 << 20,
			FlushIntervalMs: 1000,
		},
		Store: StoreConfig{
			MaxAttempts: 4,
		},
		Replay: ReplayConfig{
			BackoffBaseMs: 200,
			MaxRetries:    5,
			MaxElapsedMs:  30000,
		},
		Checkpoint: CheckpointConfig{
			IntervalMs: 5000,
			Driver:     "pebble",
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FromEnv overlays SHARDSINK_* environment variables onto cfg.
func FromEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: "SHARDSINK_"})
}
