package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/booking"
	"github.com/hackgods/therapy-slot-booking/internal/browser"
	"github.com/hackgods/therapy-slot-booking/internal/config"
	"github.com/hackgods/therapy-slot-booking/internal/db"
	"github.com/hackgods/therapy-slot-booking/internal/observability/metrics"
	"github.com/hackgods/therapy-slot-booking/internal/reconcile"
	redisclient "github.com/hackgods/therapy-slot-booking/internal/redis"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// Runtime holds the long-lived dependencies shared by the binaries.
type Runtime struct {
	Postgres *pgxpool.Pool
	// Redis is nil when it was unreachable at startup.
	Redis *redis.Client

	Store     *appointment.Service
	Checker   *booking.Checker
	Submitter *booking.Submitter
	Processor *reconcile.Processor
	Metrics   *metrics.BookingMetrics

	browser *browser.Chrome
	logger  *logging.Logger
}

// Build connects Postgres, Redis and the browser and wires the booking flow.
// Postgres is required; without Redis attempts run unlocked and clinician
// names are read straight from Postgres.
func Build(ctx context.Context, cfg config.Config, logger *logging.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if logger == nil {
		logger = logging.Default()
	}
	rt := &Runtime{logger: logger}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN,
		db.WithMaxConns(db.PoolSizeFor(cfg.ReconcileConcurrency)),
		db.WithApplicationName("therapy-slot-booking"),
	)
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: postgres: %w", err)
	}
	rt.Postgres = pool
	logger.Info("connected to Postgres")

	rdb, err := redisclient.Connect(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.ReconcileConcurrency + 10,
	})
	if err != nil {
		logger.Warn("redis unavailable, continuing without attempt locks", "error", err)
	} else {
		rt.Redis = rdb
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	}

	repo := appointment.NewPgRepository(pool)
	var clinicians appointment.ClinicianLookup = repo
	if rt.Redis != nil {
		clinicians = redisclient.NewClinicianCache(rt.Redis, repo, cfg.ClinicianCacheTTL)
	}
	rt.Store = appointment.NewService(repo, clinicians, logger.With("component", "store"))

	rt.Metrics = metrics.NewBookingMetrics(reg)

	rt.browser = browser.NewChrome(cfg.BrowserWSURL,
		browser.WithNavigationTimeout(cfg.NavigationTimeout),
		browser.WithLogger(logger.With("component", "browser")),
	)
	if cfg.BrowserWSURL != "" {
		logger.Info("using remote browser", "ws_url", cfg.BrowserWSURL)
	} else {
		logger.Info("using local headless browser")
	}

	opts := []booking.Option{
		booking.WithLogger(logger.With("component", "booking")),
		booking.WithMetrics(rt.Metrics),
		booking.WithTimeouts(booking.Timeouts{
			Selector:    cfg.SelectorTimeout,
			NetworkIdle: cfg.NetworkIdleTimeout,
		}),
	}
	if rt.Redis != nil {
		opts = append(opts, booking.WithLocker(redisclient.NewRedisURLLocker(rt.Redis, cfg.LockTTL)))
	}
	rt.Checker = booking.NewChecker(rt.Store, rt.browser, opts...)
	rt.Submitter = booking.NewSubmitter(rt.Store, rt.Checker, rt.browser, opts...)

	rt.Processor = reconcile.NewProcessor(rt.Store, rt.Submitter,
		reconcile.WithConcurrency(cfg.ReconcileConcurrency),
		reconcile.WithRetryPolicy(reconcile.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			Delay:       reconcile.FixedDelay(cfg.RetryDelay),
		}),
		reconcile.WithLogger(logger.With("component", "reconcile")),
		reconcile.WithMetrics(rt.Metrics),
	)

	return rt, nil
}

// Close releases the browser and connections in reverse order of creation.
func (rt *Runtime) Close() {
	if rt.browser != nil {
		rt.browser.Close()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil {
			rt.logger.Warn("error closing redis", "error", err)
		}
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
}
