package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	APIKey      string
	DBMaxConns  int32
	DBMinConns  int32

	ConfirmWindow time.Duration

	Economy EconomyConfig
}

type WorkerConfig struct {
	DatabaseURL string
	TickSpec    string
	DBMaxConns  int32
	DBMinConns  int32

	Economy EconomyConfig
}

// EconomyConfig carries the tunables shared by the listing, settlement and
// redistribution engines.
type EconomyConfig struct {
	ListingMinGold int64
	RevoltMinGold  int64
	RevoltGini     float64
	GiniFilterGold int64
	RevoltGoldMin  int64
	RevoltGoldMax  int64
	RevoltCooldown time.Duration
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("SAROF_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:          addr,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIKey:        strings.TrimSpace(os.Getenv("SAROF_API_KEY")),
		DBMaxConns:    int32(envInt64Default("SAROF_DB_MAX_CONNS", 20)),
		DBMinConns:    int32(envInt64Default("SAROF_DB_MIN_CONNS", 2)),
		ConfirmWindow: envDurationDefault("SAROF_CONFIRM_WINDOW", 60*time.Second),
		Economy:       loadEconomyFromEnv(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TickSpec:    envDefault("SAROF_MARKET_TICK_SPEC", "*/5 * * * *"),
		DBMaxConns:  int32(envInt64Default("SAROF_DB_MAX_CONNS", 20)),
		DBMinConns:  int32(envInt64Default("SAROF_DB_MIN_CONNS", 2)),
		Economy:     loadEconomyFromEnv(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func loadEconomyFromEnv() EconomyConfig {
	return EconomyConfig{
		ListingMinGold: envInt64Default("SAROF_LISTING_MIN_GOLD", 1000),
		RevoltMinGold:  envInt64Default("SAROF_REVOLT_MIN_GOLD", 10_000),
		RevoltGini:     envFloatDefault("SAROF_REVOLT_GINI", 0.56),
		GiniFilterGold: envInt64Default("SAROF_GINI_FILTER_GOLD", 100),
		RevoltGoldMin:  envInt64Default("SAROF_REVOLT_GOLD_MIN", 1000),
		RevoltGoldMax:  envInt64Default("SAROF_REVOLT_GOLD_MAX", 2000),
		RevoltCooldown: envDurationDefault("SAROF_REVOLT_CD", 12*time.Hour),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
