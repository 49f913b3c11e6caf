package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayursutra/booking-engine/internal/api"
	"github.com/ayursutra/booking-engine/internal/booking"
	"github.com/ayursutra/booking-engine/internal/catalog"
	"github.com/ayursutra/booking-engine/internal/clock"
	"github.com/ayursutra/booking-engine/internal/config"
	"github.com/ayursutra/booking-engine/internal/db"
	"github.com/ayursutra/booking-engine/internal/notify"
	"github.com/ayursutra/booking-engine/internal/observability"
	redisclient "github.com/ayursutra/booking-engine/internal/redis"
	"github.com/ayursutra/booking-engine/migrations"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := observability.NewLogger("api-server", "dev")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := observability.NewLogger("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	if err := migrations.Apply(rootCtx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

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
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	gateway := notify.NewRedisGateway(rdb)
	engine := booking.NewEngine(store, cat, locker, gateway, clock.NewSystem(), cfg, log)

	router := api.NewRouter(api.RouterConfig{
		Engine:  engine,
		PgPool:  pgPool,
		Redis:   rdb,
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	case <-rootCtx.Done():
	}

	log.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
