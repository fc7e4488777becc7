// Package config provides configuration for the molsystem tools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/molsystem/internal/store"
)

// Config holds the configuration shared by the CLI and library callers.
type Config struct {
	// DataDir is the base directory for databases and the local archive
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Archive configuration
	Archive ArchiveConfig `json:"archive" yaml:"archive"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// StoreConfig holds SQLite connection settings.
type StoreConfig struct {
	// JournalMode is the SQLite journal mode (WAL, DELETE, TRUNCATE, MEMORY, OFF)
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`

	// BusyTimeout is how long a statement waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// TrackSchemaVersions records every schema change of a table
	TrackSchemaVersions bool `json:"track_schema_versions" yaml:"track_schema_versions"`
}

// ArchiveConfig holds snapshot archive configuration.
type ArchiveConfig struct {
	// Type is the archive backend: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is json or console
	Format string `json:"format" yaml:"format"`
}

var journalModes = map[string]bool{
	"WAL": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "OFF": true,
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/molsystem",
		Store: StoreConfig{
			JournalMode:         "WAL",
			BusyTimeout:         5 * time.Second,
			TrackSchemaVersions: true,
		},
		Archive: ArchiveConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/molsystem"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "archive")
	}
	c.Store.JournalMode = strings.ToUpper(c.Store.JournalMode)
}

// DatabasePath resolves a database name against DataDir. Absolute paths,
// explicit relative paths and :memory: are returned as given.
func (c *Config) DatabasePath(name string) string {
	if name == ":memory:" || filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// StoreOptions converts the store section into store.Open options.
func (c *Config) StoreOptions(logger *zap.Logger) []store.Option {
	opts := []store.Option{
		store.WithJournalMode(c.Store.JournalMode),
		store.WithBusyTimeout(c.Store.BusyTimeout),
	}
	if logger != nil {
		opts = append(opts, store.WithLogger(logger))
	}
	return opts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if !journalModes[strings.ToUpper(c.Store.JournalMode)] {
		return fmt.Errorf("invalid store.journal_mode: %s", c.Store.JournalMode)
	}

	if c.Store.BusyTimeout < 0 {
		return fmt.Errorf("store.busy_timeout must not be negative, got %s", c.Store.BusyTimeout)
	}

	if c.Archive.Type != "local" && c.Archive.Type != "s3" {
		return fmt.Errorf("invalid archive type: %s (must be local or s3)", c.Archive.Type)
	}

	if c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("archive.s3.bucket is required when archive type is s3")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log.format: %s (must be json or console)", c.Log.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MOLSYSTEM_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MOLSYSTEM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Store configuration
	if v := os.Getenv("MOLSYSTEM_STORE_JOURNAL_MODE"); v != "" {
		cfg.Store.JournalMode = v
	}
	if v := os.Getenv("MOLSYSTEM_STORE_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.BusyTimeout = d
		}
	}
	if v := os.Getenv("MOLSYSTEM_STORE_TRACK_SCHEMA_VERSIONS"); v != "" {
		cfg.Store.TrackSchemaVersions = v == "true" || v == "1"
	}

	// Archive configuration
	if v := os.Getenv("MOLSYSTEM_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("MOLSYSTEM_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("MOLSYSTEM_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("MOLSYSTEM_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("MOLSYSTEM_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}
	if v := os.Getenv("MOLSYSTEM_S3_USE_PATH_STYLE"); v != "" {
		cfg.Archive.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Log configuration
	if v := os.Getenv("MOLSYSTEM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MOLSYSTEM_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
