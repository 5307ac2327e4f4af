package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the recognized tuning surface. Interval and timeout fields are
// seconds, matching how they read in the YAML file.
type Config struct {
	FullRefreshInterval     float64 `yaml:"full_refresh_interval"`
	PartialRefreshInterval  float64 `yaml:"partial_refresh_interval"`
	NormalizeCPU            bool    `yaml:"normalize_cpu"`
	HidePID0                bool    `yaml:"hide_pid0"`
	CPUChangeThreshold      float64 `yaml:"cpu_change_threshold"`
	MemoryChangeThresholdMB float64 `yaml:"memory_change_threshold_mb"`
	NewProcessHighlightSecs float64 `yaml:"new_process_highlight"`
	VisibleBufferRows       int     `yaml:"visible_buffer_rows"`
	KillTimeoutSecs         float64 `yaml:"kill_timeout"`
}

func Default() *Config {
	return &Config{
		FullRefreshInterval:     3.0,
		PartialRefreshInterval:  1.0,
		NormalizeCPU:            true,
		HidePID0:                true,
		CPUChangeThreshold:      10.0,
		MemoryChangeThresholdMB: 50.0,
		NewProcessHighlightSecs: 5.0,
		VisibleBufferRows:       10,
		KillTimeoutSecs:         3.0,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *Config) FullInterval() time.Duration        { return seconds(c.FullRefreshInterval) }
func (c *Config) PartialInterval() time.Duration     { return seconds(c.PartialRefreshInterval) }
func (c *Config) NewProcessHighlight() time.Duration { return seconds(c.NewProcessHighlightSecs) }
func (c *Config) KillTimeout() time.Duration         { return seconds(c.KillTimeoutSecs) }

// sanitize clamps values a hand-edited file could break. Non-positive
// intervals fall back to defaults rather than spinning the refresh loop.
func (c *Config) sanitize() {
	def := Default()
	if c.FullRefreshInterval <= 0 {
		c.FullRefreshInterval = def.FullRefreshInterval
	}
	if c.PartialRefreshInterval <= 0 {
		c.PartialRefreshInterval = def.PartialRefreshInterval
	}
	if c.CPUChangeThreshold <= 0 {
		c.CPUChangeThreshold = def.CPUChangeThreshold
	}
	if c.MemoryChangeThresholdMB <= 0 {
		c.MemoryChangeThresholdMB = def.MemoryChangeThresholdMB
	}
	if c.NewProcessHighlightSecs <= 0 {
		c.NewProcessHighlightSecs = def.NewProcessHighlightSecs
	}
	if c.VisibleBufferRows < 0 {
		c.VisibleBufferRows = def.VisibleBufferRows
	}
	if c.KillTimeoutSecs <= 0 {
		c.KillTimeoutSecs = def.KillTimeoutSecs
	}
}

// DefaultPath is where the config lives unless overridden with -config.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "proctop.yaml"
	}
	return filepath.Join(home, ".config", "proctop", "config.yaml")
}

// Load reads the config file. A missing or broken file yields defaults and
// writes them back so the user has something to edit.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		cfg := Default()
		_ = Save(path, cfg)
		return cfg, nil
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.sanitize()
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Watch reloads the file whenever it changes and hands the result to
// onChange. It returns once the context is cancelled or the watcher dies.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which drops a watch
	// set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if cfg, err := Load(path); err == nil {
				onChange(cfg)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
