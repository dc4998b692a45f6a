// Package config loads the settings shared by the torrent CLI and its HTTP
// service.
//
// Configuration comes from a single YAML file layered over Default().
// Command-line flags override individual fields after loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"torrent-bencode/internal/bencode"
	"torrent-bencode/internal/tracker"
)

type Config struct {
	// Listen is the address the HTTP service binds.
	Listen string `yaml:"listen"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// MaxDepth bounds container nesting when decoding untrusted input.
	// Zero disables the bound.
	MaxDepth int `yaml:"max_depth"`

	// MaxBodyBytes limits HTTP request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CatalogPath is where the torrent catalog is persisted. Empty keeps
	// the catalog in memory only. A .zst suffix stores it compressed.
	CatalogPath string `yaml:"catalog_path"`

	TrackerTimeout time.Duration `yaml:"tracker_timeout"`
	PeerPort       int           `yaml:"peer_port"`
}

func Default() *Config {
	return &Config{
		Listen:         ":8080",
		LogLevel:       "info",
		MaxDepth:       bencode.DefaultMaxDepth,
		MaxBodyBytes:   10 << 20,
		TrackerTimeout: tracker.DefaultTimeout,
		PeerPort:       tracker.DefaultPort,
	}
}

// LoadFile reads the YAML file at path over the defaults and validates the
// result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	if c.TrackerTimeout <= 0 {
		return fmt.Errorf("tracker_timeout must be positive, got %s", c.TrackerTimeout)
	}
	if c.PeerPort < 1 || c.PeerPort > 65535 {
		return fmt.Errorf("peer_port %d out of range", c.PeerPort)
	}
	return nil
}

// Level maps LogLevel onto a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", c.LogLevel)
}

// DecoderOptions returns the decoder guards for untrusted input.
func (c *Config) DecoderOptions() []bencode.DecoderOption {
	return []bencode.DecoderOption{bencode.WithMaxDepth(c.MaxDepth)}
}
