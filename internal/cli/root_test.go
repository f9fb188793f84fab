package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"init", "serve", "status", "reflect", "consolidate", "repair", "backup"}
	for _, name := range want {
		found := false
		for _, c := range RootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestLoadConfigDataDirFlagWins(t *testing.T) {
	t.Setenv("DATA_DIR", "/env/ignored")
	dataDir = t.TempDir()
	defer func() { dataDir = "" }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.DataDir != dataDir {
		t.Errorf("DataDir: got %q, want flag value %q", cfg.DataDir, dataDir)
	}
}

func TestLoadConfigEnvWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envPath, []byte("DATA_DIR=/from/file\nDECAY_RATE=0.9\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Cleanup(func() { os.Unsetenv("DECAY_RATE") })
	envFile = envPath
	defer func() { envFile = "" }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}
	if cfg.DataDir != filepath.Join(dir, "data") {
		t.Errorf("DataDir: got %q, want environment value", cfg.DataDir)
	}
	if cfg.DecayRate != 0.9 {
		t.Errorf("DecayRate: got %v, want dotenv value 0.9", cfg.DecayRate)
	}
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	envFile = filepath.Join(t.TempDir(), "absent.env")
	defer func() { envFile = "" }()

	if _, err := loadConfig(); err == nil {
		t.Fatal("loadConfig() with a missing --env-file succeeded, want error")
	}
}

func TestOpenEngineCreatesStores(t *testing.T) {
	dataDir = t.TempDir()
	defer func() { dataDir = "" }()
	t.Setenv("DATA_DIR", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() failed: %v", err)
	}

	eng, cleanup, err := openEngine(cfg)
	if err != nil {
		t.Fatalf("openEngine() failed: %v", err)
	}
	defer cleanup()

	if eng.LLMEnabled() {
		t.Error("LLMEnabled() without ANTHROPIC_API_KEY: got true, want false")
	}
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
