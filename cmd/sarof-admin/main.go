package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sarof/internal/config"
	"sarof/internal/db"
	"sarof/internal/economy"
	"sarof/internal/market"
)

// sarof-admin talks straight to the database, bypassing the API. Operator use
// only.
func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "sarof-admin",
		Short:        "Sarof economy operator tools",
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newTickCmd(),
		newRevolutionCmd(),
		newGiniCmd(),
		newBoardCmd(),
		newResetFloatingCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func withServices(fn func(ctx context.Context, eco *economy.Service, mkt *market.Service) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	eco, err := economy.NewService(pool, cfg.Economy, logger)
	if err != nil {
		return err
	}
	if err := eco.LoadSecurities(ctx); err != nil {
		return err
	}
	mkt := market.NewService(pool, eco, cfg.Economy, 0, logger)
	return fn(ctx, eco, mkt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, _ *market.Service) error {
				fmt.Println("schema applied")
				return nil
			})
		},
	}
}

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one market tick immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, mkt *market.Service) error {
				return printJSON(mkt.RunTick(ctx))
			})
		},
	}
}

func newRevolutionCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "revolution <group-id>",
		Short: "Run the redistribution check for a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, mkt *market.Service) error {
				report, err := mkt.Revolution(ctx, args[0], force)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "fire regardless of thresholds and cooldown")
	return cmd
}

func newGiniCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gini <group-id>",
		Short: "Report a group's wealth concentration without mutating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, mkt *market.Service) error {
				report, err := mkt.GiniReport(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func newResetFloatingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-floating",
		Short: "Recompute every security's book value and re-seed its pool to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, mkt *market.Service) error {
				return printJSON(mkt.ResetFloating(ctx))
			})
		},
	}
}

func newBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "List all securities with their current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(func(ctx context.Context, _ *economy.Service, mkt *market.Service) error {
				secs, err := mkt.Securities(ctx)
				if err != nil {
					return err
				}
				for _, sec := range secs {
					fmt.Printf("%-24s %-16s spot %.4f floating %.2f issuance %d\n",
						sec.Name, sec.GroupID, sec.Spot(), sec.Floating, sec.Issuance)
				}
				return nil
			})
		},
	}
}
