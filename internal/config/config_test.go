package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultDecayRate, cfg.DecayRate)
	assert.Equal(t, DefaultReflectionThreshold, cfg.ReflectionThreshold)
	assert.Equal(t, 24*time.Hour, cfg.ConsolidationInterval)
	assert.Equal(t, DefaultMergeSimilarityThreshold, cfg.MergeSimilarityThreshold)
	assert.Equal(t, DefaultPruneAgeDays, cfg.PruneAgeDays)
	assert.Equal(t, DefaultWeightRecency, cfg.WeightRecency)
	assert.Equal(t, DefaultWeightImportance, cfg.WeightImportance)
	assert.Equal(t, DefaultWeightRelevance, cfg.WeightRelevance)
	assert.Equal(t, DefaultEmbeddingModel, cfg.EmbeddingModel)
	assert.Equal(t, DefaultEmbeddingDimensions, cfg.EmbeddingDimensions)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LLMEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/engram-test")
	t.Setenv("DECAY_RATE", "0.9")
	t.Setenv("REFLECTION_THRESHOLD", "42")
	t.Setenv("CONSOLIDATION_INTERVAL", "60000")
	t.Setenv("EMBEDDING_DIMENSIONS", "768")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/engram-test", cfg.DataDir)
	assert.Equal(t, 0.9, cfg.DecayRate)
	assert.Equal(t, 42.0, cfg.ReflectionThreshold)
	assert.Equal(t, time.Minute, cfg.ConsolidationInterval)
	assert.Equal(t, 768, cfg.EmbeddingDimensions)
	assert.True(t, cfg.LLMEnabled())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestValidationCollectsAllProblems(t *testing.T) {
	t.Setenv("DECAY_RATE", "1.5")
	t.Setenv("CONSOLIDATION_INTERVAL", "-1")
	t.Setenv("EMBEDDING_DIMENSIONS", "0")
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 4)
	assert.Contains(t, err.Error(), "DECAY_RATE")
	assert.Contains(t, err.Error(), "CONSOLIDATION_INTERVAL")
	assert.Contains(t, err.Error(), "EMBEDDING_DIMENSIONS")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestValidationRejectsUnparseableNumbers(t *testing.T) {
	t.Setenv("DECAY_RATE", "fast")
	t.Setenv("PRUNE_AGE_DAYS", "ninety")

	_, err := Load()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), `DECAY_RATE must be a number, got "fast"`)
	assert.Contains(t, err.Error(), `PRUNE_AGE_DAYS must be an integer, got "ninety"`)
}

func TestValidationRejectsNullByteDataDir(t *testing.T) {
	t.Setenv("DATA_DIR", "bad\x00dir")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null byte")
}

func TestLoadWithEnvFile(t *testing.T) {
	// godotenv writes into the process environment; undo that afterwards.
	t.Cleanup(func() {
		os.Unsetenv("DECAY_RATE")
		os.Unsetenv("LOG_LEVEL")
	})

	dir := t.TempDir()
	envFile := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DECAY_RATE=0.5\nLOG_LEVEL=warn\n"), 0o600))

	cfg, err := LoadWithEnvFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.DecayRate)
	assert.Equal(t, "warn", cfg.LogLevel)

	// The process environment wins over the file.
	t.Setenv("DECAY_RATE", "0.7")
	cfg, err = LoadWithEnvFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.DecayRate)
}

func TestLoadWithEnvFileMissingExplicitPath(t *testing.T) {
	_, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/engram"}
	assert.Equal(t, filepath.Join("/var/lib/engram", "memory.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/engram", "vectors"), cfg.VectorDir())
}
