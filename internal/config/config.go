// Package config loads workbook coordination settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "rowlock.yaml"

type Config struct {
	// ChunkSize is the number of records written per engine transaction.
	ChunkSize int `yaml:"chunk_size"`

	// SpillThresholdBytes is the serialized-result size above which reads
	// spill to the cache instead of returning inline.
	SpillThresholdBytes int `yaml:"spill_threshold_bytes"`
	SpillTTLMinutes     int `yaml:"spill_ttl_minutes"`
	SpillMaxEntries     int `yaml:"spill_max_entries"`

	// SweepExpired enables the background reservation sweeper. Off by
	// default: expiry is an optional retention policy, and expired ranges
	// stay claimed either way.
	SweepExpired          bool `yaml:"sweep_expired"`
	ReservationTTLMinutes int  `yaml:"reservation_ttl_minutes"`
	SweepIntervalMinutes  int  `yaml:"sweep_interval_minutes"`

	// AuditDB is the SQLite journal path; empty disables journaling.
	AuditDB string `yaml:"audit_db"`

	// ListenAddr is where the observation server (WebSocket feed + status)
	// binds when one is started.
	ListenAddr string `yaml:"listen_addr"`
}

func Default() Config {
	return Config{
		ChunkSize:             10_000,
		SpillThresholdBytes:   256 << 10,
		SpillTTLMinutes:       15,
		SpillMaxEntries:       64,
		ReservationTTLMinutes: 30,
		SweepIntervalMinutes:  5,
		ListenAddr:            "127.0.0.1:7461",
	}
}

// ResolvePath returns the config file location: ROWLOCK_CONFIG if set,
// otherwise ./rowlock.yaml.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("ROWLOCK_CONFIG")); v != "" {
		return v
	}
	return filepath.Join(".", defaultConfigFile)
}

// LoadFromEnv loads the config at the resolved path.
func LoadFromEnv() (Config, error) {
	return Load(ResolvePath())
}

// Load reads the YAML file at path, falling back to defaults when the file
// does not exist. Unset fields take their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.SpillThresholdBytes < 0 {
		return fmt.Errorf("spill_threshold_bytes must not be negative, got %d", c.SpillThresholdBytes)
	}
	if c.SweepExpired && c.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("sweep_interval_minutes must be positive when sweeping, got %d", c.SweepIntervalMinutes)
	}
	return nil
}

func (c Config) SpillTTL() time.Duration {
	return time.Duration(c.SpillTTLMinutes) * time.Minute
}

func (c Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLMinutes) * time.Minute
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
