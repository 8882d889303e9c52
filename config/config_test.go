package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9443 {
		t.Fatalf("Server.Port = %d, want 9443", cfg.Server.Port)
	}
	if cfg.Cache.L1.Strategy != "lru" {
		t.Fatalf("Cache.L1.Strategy = %q, want lru", cfg.Cache.L1.Strategy)
	}
	if cfg.Cache.L3.Enabled {
		t.Fatal("Cache.L3.Enabled should default to false")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 7000\ncache:\n  l3:\n    enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if !cfg.Cache.L3.Enabled {
		t.Fatal("Cache.L3.Enabled should be true from file")
	}
}

func TestBindFlagsOverridesDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	if err := fs.Parse([]string{"--server-port=1234"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(fs, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 1234 {
		t.Fatalf("Server.Port = %d, want 1234", cfg.Server.Port)
	}
}
