package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds application configuration.
type Config struct {
	// SimilarityThreshold is the normalized-body similarity at or above which
	// a same-named occurrence is treated as a duplicate of the winner.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" toml:"similarity_threshold,omitempty"`

	// LibDir is the corpus directory, relative to the repo root.
	LibDir string `json:"lib_dir,omitempty" toml:"lib_dir,omitempty"`

	// DefaultInterval is applied to SQL-sourced records without an interval.
	DefaultInterval int `json:"default_interval,omitempty" toml:"default_interval,omitempty"`

	// Device is the device bucket new records are written to: both, devices or servers.
	Device string `json:"device,omitempty" toml:"device,omitempty"`

	// NamePrefix is prepended ("prefix - Name") to names derived from SQL file names.
	NamePrefix string `json:"name_prefix,omitempty" toml:"name_prefix,omitempty"`

	// Workers bounds parallel file parsing. 0 means runtime.NumCPU().
	Workers int `json:"workers,omitempty" toml:"workers,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" toml:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open ledger connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" toml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle ledger connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" toml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" toml:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("query", "corpus", "run").
	DisabledTypes []string `json:"disabled_types,omitempty" toml:"disabled_types,omitempty"`
}

// Defaults
const (
	DefaultSimilarityThreshold = 0.85
	DefaultInterval            = 3600
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		LibDir:              "lib",
		DefaultInterval:     DefaultInterval,
		Device:              "both",
		LogLevel:            "info",
	}
}

// configNames lists the recognised file names in lookup order.
var configNames = []string{"config.toml", "config.json"}

// Load loads configuration from baseDir/config.toml or baseDir/config.json.
// Returns default config if neither file exists.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(findConfigIn(baseDir))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both global (~/.qlib) and repo (.qlib) directories.
// Repo config is found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(findConfigIn(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .qlib/config.{toml,json}.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		if p := findConfigIn(filepath.Join(dir, ".qlib")); p != "" {
			return p
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func findConfigIn(dir string) string {
	for _, name := range configNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or missing (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(configPath), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SimilarityThreshold = overlay.SimilarityThreshold
	if result.SimilarityThreshold == 0 {
		result.SimilarityThreshold = base.SimilarityThreshold
	}
	result.LibDir = firstNonEmpty(overlay.LibDir, base.LibDir)
	result.DefaultInterval = overlay.DefaultInterval
	if result.DefaultInterval == 0 {
		result.DefaultInterval = base.DefaultInterval
	}
	result.Device = firstNonEmpty(overlay.Device, base.Device)
	result.NamePrefix = firstNonEmpty(overlay.NamePrefix, base.NamePrefix)
	result.Workers = overlay.Workers
	if result.Workers == 0 {
		result.Workers = base.Workers
	}
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}
	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
