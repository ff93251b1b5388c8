package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PipelineConfig mirrors the pipeline knobs. Thresholds are plain
// milliseconds because they compare against event timestamps, which are
// epoch milliseconds on the wire.
type PipelineConfig struct {
	MaxBufferSize            int           `yaml:"max_buffer_size"`
	BatchSize                int           `yaml:"batch_size"`
	DedupWindowMs            int64         `yaml:"dedup_window_ms"`
	SessionTimeoutMs         int64         `yaml:"session_timeout_ms"`
	ContextSwitchThresholdMs int64         `yaml:"context_switch_threshold_ms"`
	IdleFlush                time.Duration `yaml:"idle_flush"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle"`
	SnapshotSessions int           `yaml:"snapshot_sessions"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Pipeline: PipelineConfig{
			MaxBufferSize:            1000,
			BatchSize:                10,
			DedupWindowMs:            5000,
			SessionTimeoutMs:         300000,
			ContextSwitchThresholdMs: 60000,
			IdleFlush:                10 * time.Minute,
		},
		Storage: StorageConfig{
			Path: "sessions.db",
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotSessions: 20,
		},
	}
}

// Load reads the yaml config at path, filling unset fields with defaults.
// A missing file is not an error: the defaults are returned so the server
// can run without any config on disk.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
