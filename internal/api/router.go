package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ayursutra/booking-engine/internal/booking"
)

type RouterConfig struct {
	Engine  *booking.Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/availability", availabilityHandler(cfg.Engine))

	r.Post("/bookings", bookHandler(cfg.Engine))
	r.Get("/bookings", listBookingsHandler(cfg.Engine))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Engine))
	r.Post("/bookings/{id}/confirm", confirmHandler(cfg.Engine))
	r.Post("/bookings/{id}/cancel", cancelHandler(cfg.Engine))
	r.Post("/bookings/{id}/reschedule", rescheduleHandler(cfg.Engine))

	return r
}
