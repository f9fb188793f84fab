// Package cli implements the engram command-line interface.
//
// Every command resolves configuration the same way: the --data-dir flag
// wins over the DATA_DIR environment variable, which wins over values from
// a dotenv file. All logging goes to stderr; stdout carries command output
// (and, under serve, the JSON-RPC stream).
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/embedding"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/vector"
)

var (
	envFile string
	dataDir string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent memory engine for AI agents",
	Long: `engram fuses an append-only event log with a bi-temporal knowledge graph
and serves both to AI agents over MCP. Events record what happened; entities
and relations record what is known; recall blends recency, importance, and
semantic similarity into one ranked answer.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to load (default: ./.env when present)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides DATA_DIR)")
}

// loadConfig resolves configuration and installs the process-wide logger.
func loadConfig() (*config.Config, error) {
	if dataDir != "" {
		os.Setenv("DATA_DIR", dataDir)
	}
	cfg, err := config.LoadWithEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	return cfg, nil
}

// openEngine wires the full stack: relational store, vector index, lazy
// embedding provider, and the Anthropic generator when a key is set. The
// returned cleanup closes the store.
func openEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	store, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, err
	}

	vectors, err := vector.Open(cfg.VectorDir(), cfg.EmbeddingDimensions)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	// Lazy so that commands which never embed, like status, work without
	// a reachable Ollama.
	embedder := embedding.NewLazy(cfg.EmbeddingDimensions, func() (embedding.Provider, error) {
		return embedding.NewOllama(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	})

	var generator llm.TextGenerator
	if cfg.LLMEnabled() {
		generator = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
	}

	eng, err := engine.New(cfg, store, vectors, embedder, generator, slog.Default())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}
	return eng, cleanup, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
