package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Network.Timeout != 10*time.Second {
		t.Errorf("network.timeout = %v, want 10s", cfg.Network.Timeout)
	}
	if cfg.Sources.RequestSpacing != 100*time.Millisecond {
		t.Errorf("sources.request_spacing = %v, want 100ms", cfg.Sources.RequestSpacing)
	}
	if cfg.Sources.MaxCandles != 1000 {
		t.Errorf("sources.max_candles = %d, want 1000", cfg.Sources.MaxCandles)
	}
	want := []string{"binance", "coingecko", "cryptocompare"}
	if len(cfg.Sources.SnapshotChain) != len(want) {
		t.Fatalf("snapshot_chain = %v, want %v", cfg.Sources.SnapshotChain, want)
	}
	for i := range want {
		if cfg.Sources.SnapshotChain[i] != want[i] {
			t.Errorf("snapshot_chain[%d] = %q, want %q", i, cfg.Sources.SnapshotChain[i], want[i])
		}
	}
	if cfg.Cache.SnapshotTTL != 5*time.Minute || cfg.Cache.SeriesTTL != 5*time.Minute || cfg.Cache.ModelInfoTTL != time.Hour {
		t.Errorf("unexpected cache ttls: %+v", cfg.Cache)
	}
}

func TestLoadLocalOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("config.yaml", "network:\n  timeout: 3s\n")
	write("config.local.yaml", "network:\n  timeout: 7s\ncache:\n  backend: redis\n")

	cfg, err := LoadFrom(viper.New(), dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Network.Timeout != 7*time.Second {
		t.Errorf("network.timeout = %v, want 7s from config.local.yaml", cfg.Network.Timeout)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("cache.backend = %q, want redis", cfg.Cache.Backend)
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cache:\n  backend: disk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(viper.New(), dir); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}

func TestLoadRejectsBadGranularity(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("watch:\n  granularities: [\"2h\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(viper.New(), dir); err == nil {
		t.Fatal("expected error for unsupported granularity")
	}
}
