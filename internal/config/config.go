// Package config loads devmind configuration from .devmind/config.json and
// the optional .devmind.toml project manifest.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const currentConfigVersion = 1

// Config represents the complete devmind configuration
type Config struct {
	Version     int    `json:"version" mapstructure:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot"`

	Index   IndexConfig   `json:"index" mapstructure:"index"`
	Git     GitConfig     `json:"git" mapstructure:"git"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// IndexConfig controls the indexing pipeline
type IndexConfig struct {
	// Excludes are glob patterns or directory prefixes skipped by the walker
	Excludes []string `json:"excludes" mapstructure:"excludes"`
	// MaxFileSizeBytes caps the size of files the walker will read
	MaxFileSizeBytes int64 `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	// Workers bounds the extraction worker pool; 0 means GOMAXPROCS
	Workers int `json:"workers" mapstructure:"workers"`
}

// GitConfig controls the history harvester
type GitConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// HarvestLimit caps commits read on first harvest; 0 means full history
	HarvestLimit int `json:"harvestLimit" mapstructure:"harvestLimit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// Manifest is the optional .devmind.toml file checked into a project.
// It declares project identity and extra excludes that are merged over the
// machine-local config.
type Manifest struct {
	Name     string   `toml:"name"`
	Excludes []string `toml:"excludes"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:     currentConfigVersion,
		ProjectRoot: ".",
		Index: IndexConfig{
			Excludes: []string{
				"node_modules",
				"vendor",
				"dist",
				"build",
				"__pycache__",
				".venv",
				"venv",
			},
			MaxFileSizeBytes: 1_000_000,
			Workers:          0,
		},
		Git: GitConfig{
			Enabled:      true,
			HarvestLimit: 0,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <projectRoot>/.devmind/config.json,
// falling back to defaults when no config file exists, then merges the
// .devmind.toml manifest if present.
func LoadConfig(projectRoot string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, ".devmind"))

	cfg := DefaultConfig()
	cfg.ProjectRoot = projectRoot

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
		// The config file may carry a relative projectRoot; the caller's
		// root wins so one project tree stays self-contained.
		cfg.ProjectRoot = projectRoot
	}

	manifest, err := LoadManifest(projectRoot)
	if err != nil {
		return nil, err
	}
	if manifest != nil {
		cfg.Index.Excludes = mergeExcludes(cfg.Index.Excludes, manifest.Excludes)
	}

	return cfg, nil
}

// LoadManifest reads <projectRoot>/.devmind.toml. A missing manifest is not
// an error; it returns (nil, nil).
func LoadManifest(projectRoot string) (*Manifest, error) {
	path := filepath.Join(projectRoot, ".devmind.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func mergeExcludes(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	merged := make([]string, 0, len(base)+len(extra))
	for _, e := range base {
		if !seen[e] {
			seen[e] = true
			merged = append(merged, e)
		}
	}
	for _, e := range extra {
		if !seen[e] {
			seen[e] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// Save writes the configuration to <projectRoot>/.devmind/config.json
func (c *Config) Save(projectRoot string) error {
	dir := filepath.Join(projectRoot, ".devmind")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != currentConfigVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Index.MaxFileSizeBytes < 0 {
		return &ConfigError{Field: "index.maxFileSizeBytes", Message: "must not be negative"}
	}
	if c.Index.Workers < 0 {
		return &ConfigError{Field: "index.workers", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
