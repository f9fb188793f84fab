package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/engine"
)

var (
	reflectAgent string
	reflectForce bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "reflect",
		Short: "Run one reflection cycle",
		Long: `Reflect synthesizes higher-level insights from the agent's unreflected
events. Without --force the cycle only runs once the events' cumulative
importance crosses the configured threshold. Requires ANTHROPIC_API_KEY.`,
		Run: runReflect,
	}
	cmd.Flags().StringVar(&reflectAgent, "agent", engine.DefaultAgentID, "Agent scope to reflect over")
	cmd.Flags().BoolVar(&reflectForce, "force", false, "Reflect even below the importance threshold")
	RootCmd.AddCommand(cmd)
}

func runReflect(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer cleanup()

	if !eng.LLMEnabled() {
		exitErr("reflect", fmt.Errorf("reflection needs a language model; set ANTHROPIC_API_KEY"))
	}

	reflections, err := eng.Reflect(cmd.Context(), reflectAgent, reflectForce)
	if err != nil {
		exitErr("reflect", err)
	}

	if len(reflections) == 0 {
		fmt.Println("no reflections produced")
		return
	}
	b, _ := json.MarshalIndent(reflections, "", "  ")
	fmt.Println(string(b))
}
