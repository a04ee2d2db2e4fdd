package config

import (
	"testing"
	"time"
)

func TestLoadWorkerDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sarof")
	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TickSpec != "*/5 * * * *" {
		t.Fatalf("tick spec default = %q", cfg.TickSpec)
	}
	if cfg.Economy.RevoltGini != 0.56 {
		t.Fatalf("revolt gini default = %v", cfg.Economy.RevoltGini)
	}
	if cfg.Economy.ListingMinGold != 1000 {
		t.Fatalf("listing min default = %d", cfg.Economy.ListingMinGold)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 2 {
		t.Fatalf("pool defaults = %d/%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestPoolLimitOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sarof")
	t.Setenv("SAROF_DB_MAX_CONNS", "50")
	t.Setenv("SAROF_DB_MIN_CONNS", "5")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBMaxConns != 50 || cfg.DBMinConns != 5 {
		t.Fatalf("pool limits = %d/%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadAPIRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/sarof")
	t.Setenv("SAROF_REVOLT_CD", "30m")
	t.Setenv("SAROF_GINI_FILTER_GOLD", "250")
	t.Setenv("SAROF_REVOLT_GINI", "not-a-number")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Economy.RevoltCooldown != 30*time.Minute {
		t.Fatalf("cooldown = %v", cfg.Economy.RevoltCooldown)
	}
	if cfg.Economy.GiniFilterGold != 250 {
		t.Fatalf("gini filter = %d", cfg.Economy.GiniFilterGold)
	}
	if cfg.Economy.RevoltGini != 0.56 {
		t.Fatalf("bad value should fall back, got %v", cfg.Economy.RevoltGini)
	}
}
