// Package config loads preview settings from defaults, an optional YAML file
// and LATEX_PREVIEW_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".latex-preview.yml"

// EnvPrefix prefixes environment overrides: LATEX_PREVIEW_ADDR -> addr.
const EnvPrefix = "LATEX_PREVIEW_"

// Config holds every tunable of the preview host.
type Config struct {
	// Root is the vault directory.
	Root string `koanf:"root"`
	// Addr is the loopback address of the panel server.
	Addr string `koanf:"addr"`
	// Debounce is the quiet period between a file change and its render.
	Debounce time.Duration `koanf:"debounce"`
	// Hyphenate enables browser hyphenation in rendered documents.
	Hyphenate bool `koanf:"hyphenate"`
	// Pandoc is the generator executable.
	Pandoc string `koanf:"pandoc"`
	// HighlightStyle is the chroma style for code listings.
	HighlightStyle string `koanf:"highlight_style"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Root:           ".",
		Addr:           "127.0.0.1:7778",
		Debounce:       200 * time.Millisecond,
		Hyphenate:      false,
		Pandoc:         "pandoc",
		HighlightStyle: "github",
		LogLevel:       "info",
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

var validLogLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}
	if c.Debounce < 0 {
		return errors.New("debounce must be non-negative")
	}
	if c.Pandoc == "" {
		return errors.New("pandoc is required")
	}
	if _, ok := validLogLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	if lvl, ok := validLogLevels[strings.ToLower(c.LogLevel)]; ok {
		return lvl
	}
	return slog.LevelInfo
}
