// Package config provides configuration management for the occupancy monitor.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the monitor's top-level configuration.
type Config struct {
	Version   string          `yaml:"version"`
	HTTP      HTTPConfig      `yaml:"http"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Detector  DetectorConfig  `yaml:"detector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Zones     ZoneDefaults    `yaml:"zones"`
	Data      DataConfig      `yaml:"data"`
	Logging   LoggingConfig   `yaml:"logging"`

	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
}

// HTTPConfig holds the admin/query HTTP surface settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SnapshotConfig points at the external JPEG snapshot source.
type SnapshotConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DetectorConfig points at the external object-detector service.
type DetectorConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SchedulerConfig holds the default round-robin camera list and cadence.
type SchedulerConfig struct {
	Cameras    []string `yaml:"cameras"`
	IntervalMS int      `yaml:"interval_ms"`
}

// ZoneDefaults holds the zone-store's default thresholds for new zones.
type ZoneDefaults struct {
	MinArea        int `yaml:"min_area"`
	MaxArea        int `yaml:"max_area"`
	AlarmThreshold int `yaml:"alarm_threshold"`
}

// DataConfig holds filesystem locations for persisted state.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses a YAML configuration file, lets the PORT,
// SNAPSHOT_BASE_URL, EXTERNAL_DETECTOR_URL and DATA_DIR environment
// variables override the corresponding fields, and applies defaults for
// any field still unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("SNAPSHOT_BASE_URL"); v != "" {
		cfg.Snapshot.BaseURL = v
	}
	if v := os.Getenv("EXTERNAL_DETECTOR_URL"); v != "" {
		cfg.Detector.BaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}

	cfg.path = path
	cfg.setDefaults()

	return &cfg, nil
}

// Save writes the configuration back to its source file, atomically.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

func (c *Config) saveUnlocked() error {
	cfgCopy := &Config{
		Version:   c.Version,
		HTTP:      c.HTTP,
		Snapshot:  c.Snapshot,
		Detector:  c.Detector,
		Scheduler: c.Scheduler,
		Zones:     c.Zones,
		Data:      c.Data,
		Logging:   c.Logging,
	}

	data, err := yaml.Marshal(cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# Zone occupancy monitor configuration\n# Auto-generated - manual edits are preserved\n\n"
	data = append([]byte(header), data...)

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmpPath, c.path)
}

// Watch starts an fsnotify watcher that reloads the config 100ms after
// each file write event; every write event triggers its own reload.
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond)
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback invoked whenever the config is reloaded,
// either by the filesystem watcher or by Reload.
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// Reload re-reads the config file from disk on demand (used by the
// /config/reload admin endpoint in addition to the fsnotify watch).
func (c *Config) Reload() {
	c.reload()
}

func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	c.Version = newCfg.Version
	c.HTTP = newCfg.HTTP
	c.Snapshot = newCfg.Snapshot
	c.Detector = newCfg.Detector
	c.Scheduler = newCfg.Scheduler
	c.Zones = newCfg.Zones
	c.Data = newCfg.Data
	c.Logging = newCfg.Logging
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// SchedulerSnapshot returns a copy of the scheduler defaults under the
// read lock, safe for concurrent use.
func (c *Config) SchedulerSnapshot() SchedulerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cameras := make([]string, len(c.Scheduler.Cameras))
	copy(cameras, c.Scheduler.Cameras)
	return SchedulerConfig{Cameras: cameras, IntervalMS: c.Scheduler.IntervalMS}
}

// SetPath sets the path used for Save/Reload (used by tests and by main
// after resolving the config path from flags/env).
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetPath returns the current config file path.
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3620"
	}
	if c.Snapshot.BaseURL == "" {
		c.Snapshot.BaseURL = "http://localhost:1984"
	}
	if c.Detector.BaseURL == "" {
		c.Detector.BaseURL = "http://localhost:3000"
	}
	if c.Scheduler.IntervalMS == 0 {
		c.Scheduler.IntervalMS = 5000
	}
	if c.Zones.MinArea == 0 {
		c.Zones.MinArea = 500
	}
	if c.Zones.MaxArea == 0 {
		c.Zones.MaxArea = 50000
	}
	if c.Zones.AlarmThreshold == 0 {
		c.Zones.AlarmThreshold = 1
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "./data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
