// Package config loads the CLI configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aklajnert/idasen/pkg/desk"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds all application configuration.
type Config struct {
	Address     string     `yaml:"address"` // desk hardware address; empty means discover
	ScanTimeout Duration   `yaml:"scan_timeout"`
	Move        MoveConfig `yaml:"move"`
	LogLevel    string     `yaml:"log_level"`
}

// MoveConfig holds closed-loop motion settings.
type MoveConfig struct {
	DeadbandCm   float64  `yaml:"deadband_cm"`  // arrival tolerance
	ToleranceCm  float64  `yaml:"tolerance_cm"` // overshoot considered normal
	StallTimeout Duration `yaml:"stall_timeout"`
	Timeout      Duration `yaml:"timeout"` // overall bound on one move
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "idasen")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		ScanTimeout: Duration(10 * time.Second),
		Move: MoveConfig{
			DeadbandCm:   0.5,
			ToleranceCm:  1.0,
			StallTimeout: Duration(2 * time.Second),
			Timeout:      Duration(time.Minute),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be > 0")
	}

	if c.Move.DeadbandCm <= 0 {
		return fmt.Errorf("move.deadband_cm must be > 0")
	}

	if c.Move.ToleranceCm < 0 {
		return fmt.Errorf("move.tolerance_cm must be >= 0")
	}

	if c.Move.StallTimeout <= 0 {
		return fmt.Errorf("move.stall_timeout must be > 0")
	}

	if c.Move.Timeout <= 0 {
		return fmt.Errorf("move.timeout must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Options converts the motion settings to desk session options.
func (c *Config) Options() desk.Options {
	opts := desk.DefaultOptions()
	opts.Deadband = desk.HeightFromCm(c.Move.DeadbandCm)
	opts.Tolerance = desk.HeightFromCm(c.Move.ToleranceCm)
	opts.StallTimeout = time.Duration(c.Move.StallTimeout)
	return opts
}
