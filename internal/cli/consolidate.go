package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var consolidateMaxAge int

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation pass",
		Long: `Consolidate prunes observation overflow on every entity and refreshes
summaries that are missing, stale, or invalidated by a prune. Summary
refresh needs ANTHROPIC_API_KEY; pruning runs without it.`,
		Run: runConsolidate,
	}
	cmd.Flags().IntVar(&consolidateMaxAge, "max-age-days", 0, "Reserved for age-based pruning; currently ignored")
	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer cleanup()

	result, err := eng.Consolidate(cmd.Context(), consolidateMaxAge)
	if err != nil {
		exitErr("consolidate", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
