package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hakeemcare/clinic-booking/internal/user"
)

type RouterConfig struct {
	Booking   BookingService
	Schedules ScheduleService
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret []byte
	Logger    *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}))
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Get("/practitioners/{id}/available-slots", availableSlotsHandler(cfg.Booking))
		r.Get("/practitioners/{id}/schedule", getScheduleHandler(cfg.Schedules))

		r.With(RequireRole(user.RolePractitioner)).
			Put("/schedule", setScheduleHandler(cfg.Schedules))

		r.With(RequireRole(user.RolePatient)).
			Post("/appointments", createBookingHandler(cfg.Booking))
		r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
		r.Put("/appointments/{id}/status", updateStatusHandler(cfg.Booking))
	})

	return r
}
