package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/pkg/types"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus statistics",
		Run:   runStatus,
	}
	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer cleanup()

	stats, err := eng.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	out := struct {
		DataDir    string             `json:"data_dir"`
		LLMEnabled bool               `json:"llm_enabled"`
		Stats      *types.MemoryStats `json:"stats"`
	}{cfg.DataDir, eng.LLMEnabled(), stats}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
