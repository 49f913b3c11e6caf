package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayursutra/booking-engine/internal/booking"
	"github.com/ayursutra/booking-engine/internal/catalog"
	"github.com/ayursutra/booking-engine/internal/clock"
	"github.com/ayursutra/booking-engine/internal/config"
	"github.com/ayursutra/booking-engine/internal/db"
	"github.com/ayursutra/booking-engine/internal/notify"
	"github.com/ayursutra/booking-engine/internal/observability"
	redisclient "github.com/ayursutra/booking-engine/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := observability.NewLogger("sweep-worker", "dev")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := observability.NewLogger("sweep-worker", cfg.Env)
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("sweep-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	cat := catalog.New(catalog.NewPgDirectory(pgPool))
	store := booking.NewPgStore(pgPool, cfg.CancellationCutoff)
	gateway := notify.NewRedisGateway(rdb)
	// Sweeps never claim slots, so no locker is needed.
	engine := booking.NewEngine(store, cat, redisclient.NewNopLocker(), gateway, clock.NewSystem(), cfg, log)

	// Run once at startup
	runOnce(rootCtx, engine, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, log)
		}
	}
}

func runOnce(ctx context.Context, engine *booking.Engine, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	expired, err := engine.ExpireStalePending(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep error")
		return
	}

	completed, err := engine.CompletePast(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("completion sweep error")
		return
	}

	log.Info().
		Int("expired", expired).
		Int("completed", completed).
		Dur("took", time.Since(start)).
		Msg("sweep run complete")
}
