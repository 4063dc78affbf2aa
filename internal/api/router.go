package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/booking"
	"github.com/hackgods/therapy-slot-booking/internal/reconcile"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// RecordStore is the status store as the HTTP layer sees it.
type RecordStore interface {
	Upsert(ctx context.Context, in appointment.UpsertInput) (*appointment.Record, error)
	Find(ctx context.Context, href string) (*appointment.Record, error)
	List(ctx context.Context, filter appointment.ListFilter) ([]appointment.Record, error)
}

type Booker interface {
	Submit(ctx context.Context, patient appointment.PatientData, href string) booking.Result
}

type AvailabilityChecker interface {
	IsBooked(ctx context.Context, href string) bool
}

type Reconciler interface {
	ProcessPending(ctx context.Context) (reconcile.Summary, error)
}

type RouterConfig struct {
	Store          RecordStore
	Booker         Booker
	Checker        AvailabilityChecker
	Reconciler     Reconciler
	Postgres       Pinger
	Redis          *redis.Client
	MetricsHandler http.Handler
	Logger         *logging.Logger
	Env            string
	Version        string

	// ReconcileTimeout bounds a POST /reconcile run, which is not tied to
	// the client connection.
	ReconcileTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", listRecordsHandler(cfg.Store))
		r.Post("/", enrollHandler(cfg.Store))
		r.Get("/lookup", lookupRecordHandler(cfg.Store))
		r.Post("/submit", submitHandler(cfg.Booker))
		r.Post("/check", checkHandler(cfg.Checker))
	})

	r.Post("/reconcile", reconcileHandler(cfg.Reconciler, cfg.ReconcileTimeout, cfg.Logger))

	return r
}
