// Command ledgercheck replays every user's operation log against the
// stored balance and exits non-zero on drift.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	coredatabase "github.com/m3rciful/artbot/core/database"
	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/internal/app"
	"github.com/m3rciful/artbot/internal/ledger"
)

func main() {
	var (
		cfgPath = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")
		workers = flag.Int("workers", 8, "parallel replays")
		initial = flag.String("initial", "", "replay origin; defaults to billing.initial_balance")
	)
	flag.Parse()

	code, err := run(*cfgPath, *workers, *initial)
	if err != nil {
		log.Print(err)
	}
	_ = logger.Shutdown()
	os.Exit(code)
}

func run(cfgPath string, workers int, initialFlag string) (int, error) {
	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		return 2, err
	}
	if cfg.Ledger.Driver != app.DriverPostgres {
		return 2, fmt.Errorf("ledgercheck needs ledger.driver=postgres, got %q", cfg.Ledger.Driver)
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return 2, err
	}

	initial := ledger.DefaultInitialBalance
	switch {
	case initialFlag != "":
		initial, err = decimal.NewFromString(initialFlag)
	case cfg.Billing.InitialBalance != "":
		initial, err = decimal.NewFromString(cfg.Billing.InitialBalance)
	}
	if err != nil {
		return 2, fmt.Errorf("invalid initial balance: %w", err)
	}

	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return 2, err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg := ledger.NewPostgres(db, initial)
	users, err := pg.Users(ctx)
	if err != nil {
		return 2, err
	}

	start := time.Now()
	rep, err := ledger.Reconcile(ctx, pg, users, initial, workers)
	if err != nil {
		return 2, err
	}
	for _, d := range rep.Drifts {
		logger.Warn(ctx, "ledger", "ledger.drift",
			slog.Int64("user_id", d.UserID),
			slog.String("err", d.Err.Error()),
		)
	}
	logger.Info(ctx, "ledger", "ledger.reconciled",
		slog.Int("users", rep.Checked),
		slog.Int("drifts", len(rep.Drifts)),
		slog.Duration("duration", logger.Took(start)),
	)
	if len(rep.Drifts) > 0 {
		return 1, nil
	}
	return 0, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
