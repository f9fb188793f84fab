package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/api/mcp"
	"github.com/scrypster/engram/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout",
		Long: `Serve reads line-delimited JSON-RPC 2.0 requests from stdin and writes
response frames to stdout. All logging goes to stderr; any other byte on
stdout would corrupt the protocol stream.

While the server is up, reflection checks and consolidation passes run on
background timers. SIGINT or SIGTERM stops the timers, drains in-flight
work, and closes the store.`,
		Run: runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		exitErr("open engine", err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received shutdown signal")
		cancel()
	}()

	sched := engine.NewScheduler(eng, engine.SchedulerConfig{})
	sched.Start(ctx)
	defer sched.Stop()

	server := mcp.NewServer(eng, slog.Default())
	transport := mcp.NewStdioTransport(server, os.Stdin, os.Stdout, slog.Default())

	slog.Info("ready",
		"data_dir", cfg.DataDir,
		"llm_enabled", eng.LLMEnabled())

	// Serve returns nil when stdin closes and ctx.Err() on shutdown; both
	// are orderly exits.
	if err := transport.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("transport stopped", "error", err)
	}
}
