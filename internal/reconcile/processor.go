package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/booking"
	"github.com/hackgods/therapy-slot-booking/internal/observability/metrics"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

var ErrAlreadyRunning = errors.New("reconciliation already running")

const defaultConcurrency = 5

// Pending lists records by status.
type Pending interface {
	FindAllByStatus(ctx context.Context, status appointment.Status) ([]appointment.Record, error)
}

// Submitter books one slot.
type Submitter interface {
	Submit(ctx context.Context, patient appointment.PatientData, href string) booking.Result
}

type Summary struct {
	Total   int          `json:"total"`
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Details []ItemResult `json:"details"`
}

type ItemResult struct {
	Href          string             `json:"href"`
	Success       bool               `json:"success"`
	AlreadyBooked bool               `json:"already_booked,omitempty"`
	Attempts      int                `json:"attempts"`
	Status        appointment.Status `json:"status"`
	Error         string             `json:"error,omitempty"`
}

// Processor re-submits every record still in the unknown state. Records are
// independent: one record exhausting its retries never stops the others.
type Processor struct {
	store       Pending
	submitter   Submitter
	policy      RetryPolicy
	concurrency int
	clock       Clock
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics

	running atomic.Bool
}

// Option is a functional option for configuring the Processor.
type Option func(*Processor)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(pr *Processor) {
		if p.MaxAttempts > 0 {
			pr.policy = p
		}
	}
}

func WithConcurrency(n int) Option {
	return func(pr *Processor) {
		if n > 0 {
			pr.concurrency = n
		}
	}
}

func WithClock(c Clock) Option {
	return func(pr *Processor) {
		pr.clock = c
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(pr *Processor) {
		pr.logger = logger
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(pr *Processor) {
		pr.metrics = m
	}
}

func NewProcessor(store Pending, submitter Submitter, opts ...Option) *Processor {
	p := &Processor{
		store:       store,
		submitter:   submitter,
		policy:      DefaultRetryPolicy,
		concurrency: defaultConcurrency,
		clock:       realClock{},
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Running reports whether a run is in progress.
func (p *Processor) Running() bool {
	return p.running.Load()
}

// ProcessPending drains the unknown records once. A call made while another
// run is active returns ErrAlreadyRunning straight away.
func (p *Processor) ProcessPending(ctx context.Context) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.ObserveRun("skipped")
		return Summary{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	start := time.Now()
	records, err := p.store.FindAllByStatus(ctx, appointment.StatusUnknown)
	if err != nil {
		p.metrics.ObserveRun("error")
		return Summary{}, fmt.Errorf("load pending records: %w", err)
	}

	pending := records[:0:0]
	for _, rec := range records {
		if rec.Status == appointment.StatusUnknown {
			pending = append(pending, rec)
		}
	}

	p.logger.Info("reconciliation started", "pending", len(pending), "concurrency", p.concurrency)

	details := make([]ItemResult, len(pending))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, rec := range pending {
		g.Go(func() error {
			details[i] = p.processItem(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Total: len(pending), Details: details}
	for _, d := range details {
		if d.Success {
			summary.Success++
		} else {
			summary.Failed++
		}
	}

	p.metrics.ObserveRun("completed")
	p.metrics.ObserveDuration("reconcile", time.Since(start).Seconds())
	p.logger.Info("reconciliation finished",
		"total", summary.Total,
		"success", summary.Success,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (p *Processor) processItem(ctx context.Context, rec appointment.Record) ItemResult {
	item := ItemResult{Href: rec.Href, Status: rec.Status}
	logger := p.logger.With("href", rec.Href)

	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			item.Error = err.Error()
			break
		}

		item.Attempts = attempt
		res := p.submitter.Submit(ctx, rec.Patient, rec.Href)
		item.Status = res.Status
		item.AlreadyBooked = res.AlreadyBooked

		if res.Success {
			item.Success = true
			item.Error = ""
			break
		}
		item.Error = res.Message
		if res.Terminal() {
			break
		}

		logger.Warn("submission attempt failed", "attempt", attempt, "message", res.Message)
		if attempt == p.policy.MaxAttempts {
			break
		}
		if err := p.clock.Sleep(ctx, p.policy.delay(attempt)); err != nil {
			item.Error = err.Error()
			break
		}
	}

	p.metrics.ObserveItem(itemOutcome(item))
	return item
}

func itemOutcome(item ItemResult) string {
	switch {
	case item.Success:
		return "success"
	case item.AlreadyBooked:
		return "already_booked"
	case item.Status == appointment.StatusExpired:
		return "expired"
	default:
		return "failed"
	}
}
