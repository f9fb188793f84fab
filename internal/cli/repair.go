package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reconcile the vector index with the database",
		Long: `Repair deletes vectors whose database row is gone and re-embeds rows
whose vector is missing. Re-embedding needs a reachable embedding endpoint;
individual failures are counted, not fatal.`,
		Run: runRepair,
	}
	RootCmd.AddCommand(cmd)
}

func runRepair(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer cleanup()

	result, err := eng.Repair(cmd.Context())
	if err != nil {
		exitErr("repair", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
