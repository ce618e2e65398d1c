// Package config loads engine settings with defaults < YAML file < env.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DIFFCONTEXT"

// Config carries every tunable of the engine. Zero values are never
// meaningful; Load always starts from Default.
type Config struct {
	DataDir  string `yaml:"dataDir" split_words:"true"`
	LogLevel string `yaml:"logLevel" split_words:"true"`

	// Chunking
	WindowLines   int     `yaml:"windowLines" split_words:"true"`
	WindowOverlap float64 `yaml:"windowOverlap" split_words:"true"`

	// Indexing
	Workers       int `yaml:"workers"`
	RetentionDays int `yaml:"retentionDays" split_words:"true"`

	// Embedding
	EmbedBaseURL string        `yaml:"embedBaseURL" envconfig:"EMBED_BASE_URL"`
	EmbedAPIKey  string        `yaml:"embedApiKey" envconfig:"EMBED_API_KEY"`
	EmbedModel   string        `yaml:"embedModel" split_words:"true"`
	EmbedDim     int           `yaml:"embedDim" split_words:"true"`
	EmbedTimeout time.Duration `yaml:"embedTimeout" split_words:"true"`
	EmbedRetries int           `yaml:"embedRetries" split_words:"true"`
	EmbedCache   int           `yaml:"embedCache" split_words:"true"`

	// Vector index
	Partitions          int     `yaml:"partitions"`
	Probes              int     `yaml:"probes"`
	CompactionThreshold float64 `yaml:"compactionThreshold" split_words:"true"`

	// Selection
	TokenBudget   int           `yaml:"tokenBudget" split_words:"true"`
	Tier1Window   int           `yaml:"tier1Window" envconfig:"TIER1_WINDOW"`
	TierK         int           `yaml:"tierK" split_words:"true"`
	SearchTimeout time.Duration `yaml:"searchTimeout" split_words:"true"`

	// Expiry
	SweepSchedule string `yaml:"sweepSchedule" split_words:"true"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DataDir:             ".diffcontext",
		LogLevel:            "info",
		WindowLines:         60,
		WindowOverlap:       0.10,
		Workers:             runtime.NumCPU(),
		RetentionDays:       90,
		EmbedModel:          "text-embedding-3-small",
		EmbedDim:            1536,
		EmbedTimeout:        30 * time.Second,
		EmbedRetries:        3,
		EmbedCache:          4096,
		Partitions:          16,
		Probes:              4,
		CompactionThreshold: 0.20,
		TokenBudget:         8000,
		Tier1Window:         20,
		TierK:               3,
		SearchTimeout:       5 * time.Second,
		SweepSchedule:       "@hourly",
	}
}

// Load builds a Config from defaults, then the YAML file at path if it
// is non-empty, then DIFFCONTEXT_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.WindowLines < 1 {
		return fmt.Errorf("windowLines must be at least 1, got %d", c.WindowLines)
	}
	if c.WindowOverlap < 0 || c.WindowOverlap >= 1 {
		return fmt.Errorf("windowOverlap must be in [0, 1), got %g", c.WindowOverlap)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retentionDays must be at least 1, got %d", c.RetentionDays)
	}
	if c.Partitions < 1 {
		return fmt.Errorf("partitions must be at least 1, got %d", c.Partitions)
	}
	if c.Probes < 1 {
		return fmt.Errorf("probes must be at least 1, got %d", c.Probes)
	}
	if c.CompactionThreshold <= 0 || c.CompactionThreshold > 1 {
		return fmt.Errorf("compactionThreshold must be in (0, 1], got %g", c.CompactionThreshold)
	}
	if c.TokenBudget < 1 {
		return fmt.Errorf("tokenBudget must be at least 1, got %d", c.TokenBudget)
	}
	if c.TierK < 0 {
		return fmt.Errorf("tierK cannot be negative, got %d", c.TierK)
	}
	return nil
}

// Retention converts the day count into a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// DatabasePath is the SQLite file under the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "chunks.db")
}

// VectorIndexPath is the vector index file under the data directory.
func (c Config) VectorIndexPath() string {
	return filepath.Join(c.DataDir, "vectors.idx")
}
