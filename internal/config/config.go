// Package config loads the tool's YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tapelab/reclip/internal/notation"
)

// Config holds the settings shared by every command.
type Config struct {
	// HostURL is the base URL of the host bridge (e.g. "http://127.0.0.1:9004").
	HostURL string `yaml:"host_url"`

	// HostTimeout bounds each bridge call. Defaults to 10s.
	HostTimeout time.Duration `yaml:"host_timeout,omitempty"`

	// Meter is the time signature used to interpret bar|beat positions,
	// written "4/4". Defaults to 4/4.
	Meter string `yaml:"meter,omitempty"`

	// HoldingStart is the beat position where the engine stages
	// intermediate clips, far past any real material. Defaults to 2^20.
	HoldingStart float64 `yaml:"holding_start,omitempty"`

	// MaxSplitPoints caps the number of split points per clip. Defaults to 32.
	MaxSplitPoints int `yaml:"max_split_points,omitempty"`

	// SessionSlot is the session scene index used when routing audio
	// duplications through the session grid.
	SessionSlot int `yaml:"session_slot,omitempty"`

	// ResolveTolerance is the start-time tolerance (beats) when matching
	// clips after a mutation. Defaults to 0.001.
	ResolveTolerance float64 `yaml:"resolve_tolerance,omitempty"`

	// ResolveAttempts is how many rescans to try before declaring a clip
	// unfindable. Defaults to 3.
	ResolveAttempts int `yaml:"resolve_attempts,omitempty"`

	// JournalPath is the SQLite operation journal. Empty disables journaling.
	JournalPath string `yaml:"journal_path,omitempty"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `yaml:"sentry_dsn,omitempty"`

	// Environment tags error reports (e.g. "studio", "dev").
	Environment string `yaml:"environment,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HostURL:          "http://127.0.0.1:9004",
		HostTimeout:      10 * time.Second,
		Meter:            "4/4",
		HoldingStart:     1 << 20,
		MaxSplitPoints:   32,
		ResolveTolerance: 1e-3,
		ResolveAttempts:  3,
		Environment:      "studio",
	}
}

// Load reads and parses a config file, filling unset fields with
// defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	// Strict field validation catches typos like "host-url:".
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.HostURL == "" {
		c.HostURL = d.HostURL
	}
	if c.HostTimeout == 0 {
		c.HostTimeout = d.HostTimeout
	}
	if c.Meter == "" {
		c.Meter = d.Meter
	}
	if c.HoldingStart == 0 {
		c.HoldingStart = d.HoldingStart
	}
	if c.MaxSplitPoints == 0 {
		c.MaxSplitPoints = d.MaxSplitPoints
	}
	if c.ResolveTolerance == 0 {
		c.ResolveTolerance = d.ResolveTolerance
	}
	if c.ResolveAttempts == 0 {
		c.ResolveAttempts = d.ResolveAttempts
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
}

// Validate checks field values. Called by Load; exported for callers
// that build a Config directly.
func (c *Config) Validate() error {
	if c.HostURL == "" {
		return fmt.Errorf("host_url is required")
	}
	if c.HostTimeout < 0 {
		return fmt.Errorf("host_timeout must be non-negative")
	}
	if _, err := c.ParsedMeter(); err != nil {
		return err
	}
	if c.HoldingStart < 0 {
		return fmt.Errorf("holding_start must be non-negative")
	}
	if c.MaxSplitPoints < 1 {
		return fmt.Errorf("max_split_points must be at least 1")
	}
	if c.ResolveTolerance <= 0 {
		return fmt.Errorf("resolve_tolerance must be positive")
	}
	if c.ResolveAttempts < 1 {
		return fmt.Errorf("resolve_attempts must be at least 1")
	}
	return nil
}

// ParsedMeter converts the Meter string to a notation.Meter.
func (c *Config) ParsedMeter() (notation.Meter, error) {
	var num, den int
	if _, err := fmt.Sscanf(c.Meter, "%d/%d", &num, &den); err != nil {
		return notation.Meter{}, fmt.Errorf("meter must be written like \"4/4\", got %q", c.Meter)
	}
	if num < 1 || den < 1 {
		return notation.Meter{}, fmt.Errorf("meter numerator and denominator must be positive, got %q", c.Meter)
	}
	return notation.Meter{Numerator: num, Denominator: den}, nil
}
