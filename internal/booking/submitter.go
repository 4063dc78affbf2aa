package booking

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/browser"
	redisclient "github.com/hackgods/therapy-slot-booking/internal/redis"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

const msgAttemptStarted = "submission attempt started"

// Availability is what Submitter needs from Checker.
type Availability interface {
	IsBooked(ctx context.Context, href string) bool
}

// Submitter fills in and submits the booking form for one slot.
type Submitter struct {
	store   Store
	checker Availability
	browser browser.Browser
	opts    options
}

func NewSubmitter(store Store, checker Availability, b browser.Browser, opts ...Option) *Submitter {
	return &Submitter{
		store:   store,
		checker: checker,
		browser: b,
		opts:    buildOptions(opts),
	}
}

// Submit books href for patient. It never returns an error and never
// panics; every outcome is a Result.
func (s *Submitter) Submit(ctx context.Context, patient appointment.PatientData, href string) (res Result) {
	logger := s.opts.logger.With("href", href)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("submission panicked", "panic", r, "stack", string(debug.Stack()))
			res = failure(appointment.StatusUnknown, fmt.Sprintf("Unexpected error during submission: %v", r))
		}
		s.opts.metrics.ObserveSubmission(res.outcome())
		s.opts.metrics.ObserveDuration("submit", time.Since(start).Seconds())
		logger.Info("submission finished",
			"success", res.Success,
			"already_booked", res.AlreadyBooked,
			"status", res.Status,
			"message", res.Message,
			"duration", time.Since(start),
		)
	}()

	rec, err := s.store.Find(ctx, href)
	if err != nil {
		logger.Warn("status lookup failed", "error", err)
	} else if rec != nil && rec.Status == appointment.StatusBooked {
		return alreadyBooked()
	}

	if s.opts.locker == nil {
		return s.attempt(ctx, patient, href, logger)
	}

	err = s.opts.locker.WithURLLock(ctx, href, func(lockCtx context.Context) error {
		res = s.attempt(lockCtx, patient, href, logger)
		return nil
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		status := appointment.StatusUnknown
		if rec != nil {
			status = rec.Status
		}
		return failure(status, MsgAttemptInProgress)
	case err != nil:
		logger.Warn("attempt lock unavailable, continuing without it", "error", err)
		return s.attempt(ctx, patient, href, logger)
	}
	return res
}

func (s *Submitter) attempt(ctx context.Context, patient appointment.PatientData, href string, logger *logging.Logger) Result {
	// Write intent before touching the page so a crash leaves a trace.
	attemptedAt := s.opts.now()
	rec, err := s.store.Upsert(ctx, appointment.UpsertInput{
		Href:        href,
		Patient:     patient,
		AttemptedAt: &attemptedAt,
		Message:     msgAttemptStarted,
	})
	if err != nil {
		logger.Error("failed to record submission attempt", "error", err)
		return failure(appointment.StatusUnknown, fmt.Sprintf("Failed to record submission attempt: %v", err))
	}
	if rec.Status == appointment.StatusBooked {
		return alreadyBooked()
	}

	if s.checker != nil && s.checker.IsBooked(ctx, href) {
		return alreadyBooked()
	}

	page, err := s.browser.Open(ctx, browser.SessionOptions{})
	if err != nil {
		return failure(rec.Status, fmt.Sprintf("Failed to open browser session: %v", err))
	}
	s.opts.metrics.SessionOpened()
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close page session", "error", err)
		}
		s.opts.metrics.SessionClosed()
	}()

	if err := page.Navigate(ctx, href); err != nil {
		return failure(rec.Status, fmt.Sprintf("Failed to load appointment page: %v", err))
	}

	if res, ok := s.passConsentGate(ctx, page, patient, href, rec.Status, logger); !ok {
		return res
	}

	s.fillForm(ctx, page, patient, logger)

	sel, ok := page.FindFirstMatching(ctx, submitSelectors, s.opts.timeouts.Selector)
	if !ok {
		return failure(rec.Status, MsgCouldNotSubmit)
	}
	if err := page.Click(ctx, sel); err != nil {
		logger.Warn("submit click failed", "selector", sel, "error", err)
		return failure(rec.Status, MsgCouldNotSubmit)
	}
	if err := page.WaitForNetworkIdle(ctx, s.opts.timeouts.NetworkIdle); err != nil {
		logger.Debug("network did not settle after submit", "error", err)
	}

	return s.detectOutcome(ctx, page, patient, href, rec.Status, logger)
}

// passConsentGate clicks through the guest step. When there is none it
// looks for the too-soon banner, which marks the slot expired.
func (s *Submitter) passConsentGate(ctx context.Context, page browser.Page, patient appointment.PatientData, href string, status appointment.Status, logger *logging.Logger) (Result, bool) {
	if sel, ok := page.FindFirstMatching(ctx, guestSelectors, s.opts.timeouts.Selector); ok {
		if err := page.Click(ctx, sel); err != nil {
			logger.Warn("guest consent click failed", "selector", sel, "error", err)
		}
		return Result{}, true
	}

	banner, found := page.ContainsAnyPhrase(ctx, bannerContainers, tooSoonPhrases)
	if !found {
		return failure(status, MsgNoConsent), false
	}

	logger.Info("appointment too soon to book online", "banner", banner)
	wctx, cancel := writeBackCtx(ctx)
	defer cancel()
	if _, err := s.store.Upsert(wctx, appointment.UpsertInput{
		Href:    href,
		Patient: patient,
		Status:  appointment.StatusExpired,
		Message: banner,
	}); err != nil {
		logger.Error("failed to record expired slot", "error", err)
	}
	return Result{Status: appointment.StatusExpired, Message: banner}, false
}

func (s *Submitter) fillForm(ctx context.Context, page browser.Page, patient appointment.PatientData, logger *logging.Logger) {
	for _, f := range formFields {
		value := f.value(patient)
		if value == "" {
			continue
		}
		sel, ok := page.FindFirstMatching(ctx, f.selectors, s.opts.timeouts.Selector)
		if !ok {
			logger.Warn("form field not found, skipping", "field", f.name)
			continue
		}
		if err := page.Type(ctx, sel, value); err != nil {
			logger.Warn("failed to fill form field, skipping", "field", f.name, "error", err)
		}
	}
}

func (s *Submitter) detectOutcome(ctx context.Context, page browser.Page, patient appointment.PatientData, href string, status appointment.Status, logger *logging.Logger) Result {
	if confirmation, ok := page.ContainsAnyPhrase(ctx, confirmationContainers, successPhrases); ok {
		submittedAt := s.opts.now()
		wctx, cancel := writeBackCtx(ctx)
		defer cancel()
		if _, err := s.store.Upsert(wctx, appointment.UpsertInput{
			Href:         href,
			Patient:      patient,
			Status:       appointment.StatusBooked,
			SubmittedAt:  &submittedAt,
			Confirmation: confirmation,
			Message:      "booking confirmed",
		}); err != nil {
			// The site accepted the booking; the next check will see it.
			logger.Error("failed to record confirmed booking", "error", err)
		}
		return Result{
			Success:      true,
			Status:       appointment.StatusBooked,
			Message:      MsgBooked,
			Confirmation: confirmation,
		}
	}

	diagnostic := s.diagnostic(ctx, page, logger)
	note := "submission not confirmed"
	if diagnostic != "" {
		note += ": " + diagnostic
	}
	wctx, cancel := writeBackCtx(ctx)
	defer cancel()
	if _, err := s.store.Upsert(wctx, appointment.UpsertInput{Href: href, Message: note}); err != nil {
		logger.Warn("failed to record unconfirmed submission", "error", err)
	}

	res := failure(status, MsgNotConfirmed)
	res.Diagnostic = diagnostic
	return res
}

func (s *Submitter) diagnostic(ctx context.Context, page browser.Page, logger *logging.Logger) string {
	texts, err := page.VisibleText(ctx, errorContainers)
	if err != nil {
		logger.Debug("failed to read error text", "error", err)
		return ""
	}
	for _, t := range texts {
		if t != "" {
			return t
		}
	}
	return ""
}
