package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "portod.toml")
	body := `
socket_path = "/run/custom.socket"
rpc_workers = 16
aging_sweep_interval = "1m"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.SocketPath != "/run/custom.socket" {
		t.Errorf("SocketPath = %q, want override", cfg.SocketPath)
	}
	if cfg.RPCWorkers != 16 {
		t.Errorf("RPCWorkers = %d, want 16", cfg.RPCWorkers)
	}
	if cfg.AgingSweepInterval.Duration != time.Minute {
		t.Errorf("AgingSweepInterval = %v, want 1m", cfg.AgingSweepInterval.Duration)
	}
	// Unset fields keep their defaults.
	if cfg.KVRoot != Default().KVRoot {
		t.Errorf("KVRoot = %q, want default %q", cfg.KVRoot, Default().KVRoot)
	}
	if cfg.DefaultMaxRespawns != -1 {
		t.Errorf("DefaultMaxRespawns = %d, want -1", cfg.DefaultMaxRespawns)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error loading missing config file")
	}
}
