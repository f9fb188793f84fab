package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/vector"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and database schema",
		Run:   runInit,
	}
	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	// Opening applies the schema; both opens are idempotent, so init on an
	// existing data directory is harmless.
	store, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		exitErr("initialize database", err)
	}
	if err := store.Close(); err != nil {
		exitErr("close database", err)
	}

	if _, err := vector.Open(cfg.VectorDir(), cfg.EmbeddingDimensions); err != nil {
		exitErr("initialize vector store", err)
	}

	fmt.Printf("initialized %s\n", cfg.DataDir)
	fmt.Printf("  database: %s\n", cfg.DatabasePath())
	fmt.Printf("  vectors:  %s\n", cfg.VectorDir())
}
