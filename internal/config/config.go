// Package config loads pytutor settings. Values come from the defaults,
// then an optional pytutor.toml or pytutor.yaml file, then command-line
// flags, each layer overriding the one before.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileNames are the config files looked for in a directory, in order.
var FileNames = []string{"pytutor.toml", "pytutor.yaml", "pytutor.yml"}

// Config is the complete set of settings.
type Config struct {
	MaxSteps  int    `toml:"max_steps" yaml:"max_steps"`
	StableIDs bool   `toml:"stable_ids" yaml:"stable_ids"`
	MaxDepth  int    `toml:"max_depth" yaml:"max_depth"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	Server    Server `toml:"server" yaml:"server"`
}

// Server holds the settings of the HTTP front end.
type Server struct {
	Addr         string        `toml:"addr" yaml:"addr"`
	Timeout      time.Duration `toml:"timeout" yaml:"timeout"`
	MaxBodyBytes int64         `toml:"max_body_bytes" yaml:"max_body_bytes"`
	CacheDir     string        `toml:"cache_dir" yaml:"cache_dir"`
	QueryLog     string        `toml:"query_log" yaml:"query_log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxSteps:  200,
		StableIDs: true,
		MaxDepth:  1000,
		LogLevel:  "info",
		Server: Server{
			Addr:         "127.0.0.1:8003",
			Timeout:      10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Find returns the first config file present in dir, or "" if there is none.
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			return path
		}
	}
	return ""
}

// Load returns the defaults overlaid with the file at path. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		if keys := meta.Undecoded(); len(keys) > 0 {
			return cfg, fmt.Errorf("%s: unknown key %q", path, keys[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("%s: unsupported config format %q", path, ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	return nil
}

// Template is the annotated default config file written by `pytutor init`.
const Template = `# pytutor configuration

# Steps recorded before a run is stopped.
max_steps = 200

# Report object ids in traces. Regression traces turn this off.
stable_ids = true

# Recursion limit of traced programs.
max_depth = 1000

# trace, debug, info, warn or error.
log_level = "info"

[server]
addr = "127.0.0.1:8003"
timeout = "10s"
max_body_bytes = 1048576

# Directory for cached traces; empty disables the cache.
cache_dir = ""

# SQLite file recording submitted programs; empty disables the log.
query_log = ""
`
