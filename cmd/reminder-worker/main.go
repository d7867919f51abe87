package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-ledger/internal/config"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/logging"
	"github.com/hackgods/clinic-booking-ledger/internal/metrics"
	"github.com/hackgods/clinic-booking-ledger/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := logging.New(cfg.LogLevel, cfg.Env).With().Str("component", "reminder-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()
	log.Info().Msg("connected to Postgres")

	dispatcher := reminder.NewDispatcher(
		pool,
		reminder.LogNotifier{Log: log},
		log,
		metrics.NewReminderMetrics(nil),
	)

	// Run once at startup, then on the ticker.
	runOnce(rootCtx, dispatcher, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, log)
		}
	}
}

func runOnce(ctx context.Context, dispatcher *reminder.Dispatcher, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := dispatcher.RunOnce(runCtx); err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Debug().Dur("took", time.Since(start)).Msg("reminder run complete")
}
