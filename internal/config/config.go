// Package config loads engine configuration from the environment, with an
// optional dotenv file, and validates it before anything opens a store.
// Validation is collecting: every violated constraint is reported in one
// multi-line error instead of failing on the first.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every recognized option.
const (
	DefaultDataDir                  = "./data"
	DefaultDecayRate                = 0.995
	DefaultReflectionThreshold      = 150.0
	DefaultConsolidationIntervalMS  = 86400000
	DefaultMergeSimilarityThreshold = 0.85
	DefaultPruneAgeDays             = 90
	DefaultWeightRecency            = 0.4
	DefaultWeightImportance         = 0.3
	DefaultWeightRelevance          = 0.3
	DefaultEmbeddingModel           = "Xenova/all-MiniLM-L6-v2"
	DefaultEmbeddingDimensions      = 384
	DefaultAnthropicModel           = "claude-3-5-haiku-latest"
	DefaultOllamaBaseURL            = "http://localhost:11434"
	DefaultLogLevel                 = "info"
)

// Config holds all runtime settings for the memory engine.
type Config struct {
	// DataDir is the root of persistence: memory.db plus the vectors/
	// directory live under it.
	DataDir string

	// DecayRate is the per-hour recency decay factor, in (0, 1).
	DecayRate float64

	// ReflectionThreshold is the cumulative-importance trigger for a
	// reflection cycle (compared against sum(importance * 10)).
	ReflectionThreshold float64

	// ConsolidationInterval is the period of the consolidation timer.
	ConsolidationInterval time.Duration

	// MergeSimilarityThreshold is reserved for future near-duplicate
	// entity merging.
	MergeSimilarityThreshold float64

	// PruneAgeDays is reserved for future age-based pruning.
	PruneAgeDays int

	// Recall score weights. Warned about when they do not sum to 1.0
	// within 0.01, but never normalized.
	WeightRecency    float64
	WeightImportance float64
	WeightRelevance  float64

	// EmbeddingModel is the provider model tag.
	EmbeddingModel string

	// EmbeddingDimensions is the fixed vector length.
	EmbeddingDimensions int

	// AnthropicAPIKey enables importance scoring, reflection, and
	// summary refresh when set.
	AnthropicAPIKey string

	// AnthropicModel is the generation model used when the key is set.
	AnthropicModel string

	// OllamaBaseURL is the embedding endpoint.
	OllamaBaseURL string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// ValidationError aggregates every configuration problem found during Load.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// Load reads configuration from the environment over defaults and
// validates it.
func Load() (*Config, error) {
	return load()
}

// LoadWithEnvFile behaves like Load but first applies a dotenv file.
// An empty path means "use ./.env when present"; an explicit path must
// exist. Real environment variables always win over file values.
func LoadWithEnvFile(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				return nil, fmt.Errorf("config: load .env: %w", err)
			}
		}
	} else {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("config: load env file %s: %w", path, err)
		}
	}
	return load()
}

func load() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		DataDir:                  r.str("DATA_DIR", DefaultDataDir),
		DecayRate:                r.float("DECAY_RATE", DefaultDecayRate),
		ReflectionThreshold:      r.float("REFLECTION_THRESHOLD", DefaultReflectionThreshold),
		ConsolidationInterval:    time.Duration(r.int("CONSOLIDATION_INTERVAL", DefaultConsolidationIntervalMS)) * time.Millisecond,
		MergeSimilarityThreshold: r.float("MERGE_SIMILARITY_THRESHOLD", DefaultMergeSimilarityThreshold),
		PruneAgeDays:             r.int("PRUNE_AGE_DAYS", DefaultPruneAgeDays),
		WeightRecency:            r.float("WEIGHT_RECENCY", DefaultWeightRecency),
		WeightImportance:         r.float("WEIGHT_IMPORTANCE", DefaultWeightImportance),
		WeightRelevance:          r.float("WEIGHT_RELEVANCE", DefaultWeightRelevance),
		EmbeddingModel:           r.str("EMBEDDING_MODEL", DefaultEmbeddingModel),
		EmbeddingDimensions:      r.int("EMBEDDING_DIMENSIONS", DefaultEmbeddingDimensions),
		AnthropicAPIKey:          r.str("ANTHROPIC_API_KEY", ""),
		AnthropicModel:           r.str("ANTHROPIC_MODEL", DefaultAnthropicModel),
		OllamaBaseURL:            r.str("OLLAMA_BASE_URL", DefaultOllamaBaseURL),
		LogLevel:                 r.str("LOG_LEVEL", DefaultLogLevel),
	}

	problems := append(r.problems, cfg.check()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

// check validates every field and returns one line per violated constraint.
func (c *Config) check() []string {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "DATA_DIR must not be empty")
	} else if strings.ContainsRune(c.DataDir, 0) {
		problems = append(problems, "DATA_DIR must not contain a null byte")
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		problems = append(problems, fmt.Sprintf("DECAY_RATE must be in (0, 1), got %v", c.DecayRate))
	}
	if c.ReflectionThreshold < 0 {
		problems = append(problems, fmt.Sprintf("REFLECTION_THRESHOLD must be >= 0, got %v", c.ReflectionThreshold))
	}
	if c.ConsolidationInterval <= 0 {
		problems = append(problems, fmt.Sprintf("CONSOLIDATION_INTERVAL must be > 0 ms, got %v", c.ConsolidationInterval))
	}
	if c.MergeSimilarityThreshold < 0 || c.MergeSimilarityThreshold > 1 {
		problems = append(problems, fmt.Sprintf("MERGE_SIMILARITY_THRESHOLD must be in [0, 1], got %v", c.MergeSimilarityThreshold))
	}
	if c.PruneAgeDays <= 0 {
		problems = append(problems, fmt.Sprintf("PRUNE_AGE_DAYS must be > 0, got %d", c.PruneAgeDays))
	}
	if c.WeightRecency < 0 {
		problems = append(problems, fmt.Sprintf("WEIGHT_RECENCY must be >= 0, got %v", c.WeightRecency))
	}
	if c.WeightImportance < 0 {
		problems = append(problems, fmt.Sprintf("WEIGHT_IMPORTANCE must be >= 0, got %v", c.WeightImportance))
	}
	if c.WeightRelevance < 0 {
		problems = append(problems, fmt.Sprintf("WEIGHT_RELEVANCE must be >= 0, got %v", c.WeightRelevance))
	}
	if c.EmbeddingDimensions <= 0 {
		problems = append(problems, fmt.Sprintf("EMBEDDING_DIMENSIONS must be > 0, got %d", c.EmbeddingDimensions))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}

	return problems
}

// DatabasePath is the relational store file under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "memory.db")
}

// VectorDir is the vector-store directory under DataDir.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectors")
}

// LLMEnabled reports whether the optional language-model provider is
// configured. Importance scoring, reflection, and summary refresh all key
// off this.
func (c *Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// reader accumulates parse problems while pulling typed values from the
// environment.
type reader struct {
	problems []string
}

func (r *reader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *reader) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s must be a number, got %q", key, value))
		return defaultValue
	}
	return parsed
}

func (r *reader) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.problems = append(r.problems, fmt.Sprintf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return parsed
}
