package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"sarof/internal/config"
	"sarof/internal/db"
	"sarof/internal/economy"
	"sarof/internal/market"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	eco, err := economy.NewService(pool, cfg.Economy, logger)
	if err != nil {
		logger.Error("economy init failed", "err", err)
		os.Exit(1)
	}
	if err := eco.LoadSecurities(ctx); err != nil {
		logger.Error("load securities failed", "err", err)
		os.Exit(1)
	}
	mkt := market.NewService(pool, eco, cfg.Economy, 0, logger)

	tick := func() {
		reports := mkt.RunTick(ctx)
		logger.Info("market tick complete", "securities", len(reports))
		mkt.RevolutionSweep(ctx)
	}

	if strings.EqualFold(strings.TrimSpace(os.Getenv("SAROF_WORKER_RUN_ONCE")), "true") {
		tick()
		logger.Info("worker run-once completed")
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.TickSpec, tick); err != nil {
		logger.Error("bad tick spec", "spec", cfg.TickSpec, "err", err)
		os.Exit(1)
	}
	c.Start()
	logger.Info("worker started", "tick_spec", cfg.TickSpec)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("worker shutdown")
}
