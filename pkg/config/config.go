package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/idlewatch/pkg/source"
)

// Config holds all configuration for idlewatch
type Config struct {
	// Detection settings
	LogFile        string        `yaml:"log_file" toml:"log_file" env:"IDLEWATCH_LOG_FILE"`
	IdleThreshold  time.Duration `yaml:"idle_threshold" toml:"idle_threshold" env:"IDLEWATCH_IDLE_THRESHOLD"`
	SampleInterval time.Duration `yaml:"sample_interval" toml:"sample_interval" env:"IDLEWATCH_SAMPLE_INTERVAL"`
	LocalTime      bool          `yaml:"local_time" toml:"local_time" env:"IDLEWATCH_LOCAL_TIME"`

	// Input source
	Source       string        `yaml:"source" toml:"source" env:"IDLEWATCH_SOURCE"`
	Devices      []string      `yaml:"devices" toml:"devices"`
	TTY          string        `yaml:"tty" toml:"tty"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`

	// Diagnostics
	LogLevel  string `yaml:"log_level" toml:"log_level" env:"IDLEWATCH_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
	Verbose   bool   `yaml:"verbose" toml:"verbose"`
}

const (
	// DefaultIdleThreshold applies when no threshold is configured.
	DefaultIdleThreshold = 5 * time.Minute
	// DefaultSampleInterval applies when no interval is configured.
	DefaultSampleInterval = 30 * time.Second
)

// DefaultLogFile is the idle log path used when none is configured.
func DefaultLogFile() string {
	return filepath.Join(os.TempDir(), "idlewatch.txt")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogFile:        DefaultLogFile(),
		IdleThreshold:  DefaultIdleThreshold,
		SampleInterval: DefaultSampleInterval,
		Source:         source.Auto,
		PollInterval:   source.DefaultPollInterval,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load loads configuration from file and environment. Positional arguments
// and flags are applied by the caller afterwards.
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile loads configuration from an explicit file path and the environment.
func LoadFile(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	return cfg, nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if path := os.Getenv("IDLEWATCH_CONFIG"); path != "" {
		return path
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "idlewatch", "config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "idlewatch", "config.yaml")
	}

	return ""
}

// loadFromFile loads configuration from a YAML or TOML file
func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - The config file path comes from trusted sources (flag, env var or standard locations)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) error {
	if path := os.Getenv("IDLEWATCH_LOG_FILE"); path != "" {
		cfg.LogFile = path
	}

	if threshold := os.Getenv("IDLEWATCH_IDLE_THRESHOLD"); threshold != "" {
		d, err := time.ParseDuration(threshold)
		if err != nil {
			return fmt.Errorf("invalid IDLEWATCH_IDLE_THRESHOLD: %w", err)
		}
		cfg.IdleThreshold = d
	}

	if interval := os.Getenv("IDLEWATCH_SAMPLE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid IDLEWATCH_SAMPLE_INTERVAL: %w", err)
		}
		cfg.SampleInterval = d
	}

	if name := os.Getenv("IDLEWATCH_SOURCE"); name != "" {
		cfg.Source = name
	}

	if level := os.Getenv("IDLEWATCH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if local := os.Getenv("IDLEWATCH_LOCAL_TIME"); local != "" {
		switch local {
		case "true", "1", "yes":
			cfg.LocalTime = true
		case "false", "0", "no":
			cfg.LocalTime = false
		default:
			return fmt.Errorf("invalid IDLEWATCH_LOCAL_TIME value: %q (use true/false)", local)
		}
	}

	if os.Getenv("IDLEWATCH_DEBUG") == "1" {
		cfg.LogLevel = "debug"
	}

	return nil
}

// ApplyArgs applies the positional arguments: log file, idle threshold in
// minutes and sample interval in seconds. Missing trailing arguments keep
// the current values.
func ApplyArgs(cfg *Config, args []string) error {
	if len(args) > 3 {
		return fmt.Errorf("too many arguments: got %d, want at most 3", len(args))
	}

	if len(args) > 0 {
		cfg.LogFile = args[0]
	}

	if len(args) > 1 {
		minutes, err := parseCount(args[1])
		if err != nil {
			return fmt.Errorf("invalid idle threshold %q: %w", args[1], err)
		}
		cfg.IdleThreshold = time.Duration(minutes) * time.Minute
	}

	if len(args) > 2 {
		seconds, err := parseCount(args[2])
		if err != nil {
			return fmt.Errorf("invalid sample interval %q: %w", args[2], err)
		}
		cfg.SampleInterval = time.Duration(seconds) * time.Second
	}

	return nil
}

// parseCount parses a non-negative whole number.
func parseCount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a whole number")
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative")
	}
	return n, nil
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.LogFile == "" {
		return fmt.Errorf("log_file must not be empty")
	}

	if cfg.IdleThreshold < 0 {
		return fmt.Errorf("idle_threshold must be non-negative")
	}

	if cfg.SampleInterval < 0 {
		return fmt.Errorf("sample_interval must be non-negative")
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if !slices.Contains(source.Names(), cfg.Source) {
		return fmt.Errorf("unknown source %q (available: %s)", cfg.Source, strings.Join(source.Names(), ", "))
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}
