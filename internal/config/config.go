// Package config provides configuration management for the mirrorfs mount.
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

// Config represents the complete mount configuration.
type Config struct {
	Mount   MountConfig   `yaml:"mount"`
	Server  ServerConfig  `yaml:"server"`
	Lock    LockConfig    `yaml:"lock"`
	Logging LoggingConfig `yaml:"logging"`
}

// MountConfig holds FUSE mount options.
type MountConfig struct {
	FsName     string   `yaml:"fs_name"`
	AllowOther bool     `yaml:"allow_other"`
	ReadOnly   bool     `yaml:"read_only"`
	Debug      bool     `yaml:"debug"`
	DirectIO   bool     `yaml:"direct_io"`
	Exclude    []string `yaml:"exclude"`

	UnmountRetries    uint   `yaml:"unmount_retries"`
	UnmountRetryDelay string `yaml:"unmount_retry_delay"`
}

// ServerConfig holds status server addresses. Empty disables a listener.
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// LockConfig holds the location of per-mount-point lock files.
type LockConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mount: MountConfig{
			FsName:            "mirrorfs",
			UnmountRetries:    5,
			UnmountRetryDelay: "200ms",
		},
		Lock: LockConfig{
			Dir: filepath.Join(os.TempDir(), "mirrorfs"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault loads configuration from a file, or returns default if file doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks values that cannot be fixed up with a default.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if c.Mount.UnmountRetryDelay != "" {
		if _, err := time.ParseDuration(c.Mount.UnmountRetryDelay); err != nil {
			errs = append(errs, fmt.Errorf("mount.unmount_retry_delay: %w", err))
		}
	}

	if c.Mount.FsName == "" {
		errs = append(errs, errors.New("mount.fs_name: must not be empty"))
	}

	for i, p := range c.Mount.Exclude {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("mount.exclude[%d]: empty pattern", i))
		}
	}

	return errors.Join(errs...)
}

// GetUnmountRetryDelay returns the initial delay between unmount attempts.
func (c *MountConfig) GetUnmountRetryDelay() time.Duration {
	d, err := time.ParseDuration(c.UnmountRetryDelay)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}
