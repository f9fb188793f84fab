package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/engram/internal/backup"
)

var backupOut string

func init() {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a point-in-time snapshot of the data directory",
		Long: `Backup copies the database with VACUUM INTO, verifies the copy, and
copies the vector index files into a fresh timestamped directory. The
source database may be in use; the snapshot is still consistent.`,
		Run: runBackup,
	}
	cmd.Flags().StringVar(&backupOut, "out", "", "Parent directory for snapshots (default: <data-dir>/backups)")
	RootCmd.AddCommand(cmd)
}

func runBackup(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	out := backupOut
	if out == "" {
		out = filepath.Join(cfg.DataDir, "backups")
	}

	result, err := backup.Snapshot(cmd.Context(), cfg.DatabasePath(), cfg.VectorDir(), out)
	if err != nil {
		exitErr("backup", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
