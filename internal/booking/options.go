package booking

import (
	"context"
	"time"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/observability/metrics"
	redisclient "github.com/hackgods/therapy-slot-booking/internal/redis"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

// Store is the slice of the status store the booking flow needs.
type Store interface {
	Find(ctx context.Context, href string) (*appointment.Record, error)
	Upsert(ctx context.Context, in appointment.UpsertInput) (*appointment.Record, error)
}

// Timeouts bound individual page steps. Navigation is bounded by the browser.
type Timeouts struct {
	Selector    time.Duration
	NetworkIdle time.Duration
}

// writeBackTimeout bounds status writes made after the site has answered.
const writeBackTimeout = 5 * time.Second

// writeBackCtx outlives the attempt's ctx so an outcome the site already
// reported is still recorded when the caller has gone away.
func writeBackCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
}

var DefaultTimeouts = Timeouts{
	Selector:    3 * time.Second,
	NetworkIdle: 10 * time.Second,
}

type options struct {
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	locker   redisclient.Locker
	timeouts Timeouts
	now      func() time.Time
}

// Option is a functional option shared by Checker and Submitter.
type Option func(*options)

func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLocker serialises attempts on the same href across processes.
// Without it Submit relies on the store pre-check alone.
func WithLocker(l redisclient.Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(o *options) {
		if t.Selector > 0 {
			o.timeouts.Selector = t.Selector
		}
		if t.NetworkIdle > 0 {
			o.timeouts.NetworkIdle = t.NetworkIdle
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   logging.Default(),
		timeouts: DefaultTimeouts,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	return o
}
