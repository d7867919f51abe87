package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-ledger/internal/booking"
	"github.com/hackgods/clinic-booking-ledger/internal/db"
	"github.com/hackgods/clinic-booking-ledger/internal/ledger"
)

type RouterConfig struct {
	Booking  *booking.Service
	Ledger   *ledger.Allocator
	Pool     db.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Log      zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.Pool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Booking))
		r.Get("/{id}", getAppointmentHandler(cfg.Booking))
		r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Booking))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Booking))
		r.Post("/{id}/no-show", noShowAppointmentHandler(cfg.Booking))
	})

	r.Route("/patients/{id}", func(r chi.Router) {
		r.Get("/appointments", listPatientAppointmentsHandler(cfg.Booking))
		r.Get("/balance", patientBalanceHandler(cfg.Ledger))
		r.Post("/payments", recordPaymentHandler(cfg.Ledger))
		r.Post("/waivers", recordWaiverHandler(cfg.Ledger))
		r.Post("/credit-refunds", refundCreditHandler(cfg.Ledger))
		r.Post("/bundles", purchaseBundleHandler(cfg.Ledger))
	})

	return r
}
