// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/selfstore/lib/chunker"
)

// EnvironmentVariable names the config file read by [Load].
const EnvironmentVariable = "SELFSTORE_CONFIG"

// Environment selects which override section applies.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the client configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Chunking ChunkingConfig `yaml:"chunking"`
	Upload   UploadConfig   `yaml:"upload"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Storage  StorageConfig  `yaml:"storage"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Log      LogConfig      `yaml:"log"`

	// Development and Production hold partial configs decoded over
	// the base when Environment matches. Only keys present in the
	// section change.
	Development *yaml.Node `yaml:"development,omitempty"`
	Production  *yaml.Node `yaml:"production,omitempty"`
}

// ChunkingConfig controls how objects are split and compressed.
type ChunkingConfig struct {
	// Strategy is "fixed" or "content".
	Strategy     string `yaml:"strategy"`
	MinChunks    int    `yaml:"min_chunks"`
	MaxChunkSize Size   `yaml:"max_chunk_size"`

	// Compression is "none", "lz4", "zstd", or "auto".
	Compression string `yaml:"compression"`
}

// UploadConfig controls the upload coordinator.
type UploadConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// FetchConfig controls reconstruction.
type FetchConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// CacheEntries sizes the LRU of verified chunks. Zero disables
	// the cache.
	CacheEntries int `yaml:"cache_entries"`
}

// StorageConfig selects the chunk and register store.
type StorageConfig struct {
	// Backend is "memory", "sqlite", or "badger".
	Backend string `yaml:"backend"`

	// Path is the database file (sqlite) or directory (badger).
	Path string `yaml:"path"`
}

// WalletConfig locates the local wallet.
type WalletConfig struct {
	Dir string `yaml:"dir"`

	// PricePerChunk is the flat storage price quoted per chunk.
	PricePerChunk uint64 `yaml:"price_per_chunk"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
}

// Size is a byte count written either as an integer or as a human
// size string ("1 MiB", "512KiB", "4MB").
type Size int64

// UnmarshalYAML accepts integers and humanize size strings.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", node.Line)
	}
	if value, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*s = Size(value)
		return nil
	}
	value, err := humanize.ParseBytes(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid size %q: %w", node.Line, node.Value, err)
	}
	*s = Size(value)
	return nil
}

// MarshalYAML writes the IEC form.
func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s Size) String() string {
	return humanize.IBytes(uint64(s))
}

// Default returns the development configuration used as the base
// before a file is decoded over it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Chunking: ChunkingConfig{
			Strategy:     "fixed",
			MinChunks:    3,
			MaxChunkSize: 1024 * 1024,
			Compression:  "auto",
		},
		Upload: UploadConfig{
			Concurrency:    8,
			MaxAttempts:    5,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Fetch: FetchConfig{
			Concurrency:    16,
			MaxAttempts:    5,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			CacheEntries:   1024,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Wallet: WalletConfig{
			Dir:           filepath.Join(homeDir, ".local", "share", "selfstore", "wallet"),
			PricePerChunk: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the file named by SELFSTORE_CONFIG. There is no search
// path; an unset variable is an error.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it to the path of a selfstore config file",
			EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile decodes path over [Default], applies the matching
// environment section, expands ${VAR} references in paths, and
// validates the result. Files ending in .json or .jsonc may contain
// comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".jsonc") || strings.HasSuffix(path, ".json") {
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides decodes the section for c.Environment
// over c. Production without a section of its own logs at warn.
func (c *Config) applyEnvironmentOverrides() error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = c.Development
	case Production:
		section = c.Production
		if section == nil {
			c.Log.Level = "warn"
		}
	}
	if section == nil {
		return nil
	}
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("applying %s overrides: %w", c.Environment, err)
	}
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Wallet.Dir = expandVars(c.Wallet.Dir, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		if !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", field, allowed, value))
		}
	}

	oneOf("environment", string(c.Environment), string(Development), string(Production))
	oneOf("chunking.strategy", c.Chunking.Strategy, "fixed", "content")
	oneOf("chunking.compression", c.Chunking.Compression, "none", "lz4", "zstd", "auto")
	oneOf("storage.backend", c.Storage.Backend, "memory", "sqlite", "badger")
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")

	if c.Chunking.MinChunks < 3 {
		errs = append(errs, fmt.Errorf("chunking.min_chunks must be at least 3, got %d", c.Chunking.MinChunks))
	}
	if c.Chunking.MaxChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunking.max_chunk_size must be positive"))
	}
	if c.Chunking.MaxChunkSize > chunker.MaxChunkSizeLimit {
		errs = append(errs, fmt.Errorf("chunking.max_chunk_size must be at most %s, got %s",
			Size(chunker.MaxChunkSizeLimit), c.Chunking.MaxChunkSize))
	}
	if c.Chunking.Strategy == "content" && c.Chunking.MaxChunkSize < 4096 {
		errs = append(errs, fmt.Errorf("chunking.max_chunk_size must be at least 4 KiB for content chunking, got %s",
			c.Chunking.MaxChunkSize))
	}

	retry := func(section string, concurrency, attempts int, initial, maximum time.Duration) {
		if concurrency < 1 {
			errs = append(errs, fmt.Errorf("%s.concurrency must be at least 1", section))
		}
		if attempts < 1 {
			errs = append(errs, fmt.Errorf("%s.max_attempts must be at least 1", section))
		}
		if initial <= 0 || maximum < initial {
			errs = append(errs, fmt.Errorf("%s backoff must satisfy 0 < initial_backoff <= max_backoff, got %v and %v",
				section, initial, maximum))
		}
	}
	retry("upload", c.Upload.Concurrency, c.Upload.MaxAttempts, c.Upload.InitialBackoff, c.Upload.MaxBackoff)
	retry("fetch", c.Fetch.Concurrency, c.Fetch.MaxAttempts, c.Fetch.InitialBackoff, c.Fetch.MaxBackoff)
	if c.Fetch.CacheEntries < 0 {
		errs = append(errs, fmt.Errorf("fetch.cache_entries must not be negative"))
	}

	if c.Storage.Backend != "memory" && c.Storage.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
	}
	if c.Wallet.Dir == "" {
		errs = append(errs, fmt.Errorf("wallet.dir is required"))
	}

	return errors.Join(errs...)
}
