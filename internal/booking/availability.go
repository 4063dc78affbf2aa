package booking

import (
	"context"
	"time"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/browser"
)

// Checker decides whether a slot can still be booked. The store is
// consulted first; the live page is only loaded when the store has no
// booked record.
type Checker struct {
	store   Store
	browser browser.Browser
	opts    options
}

func NewChecker(store Store, b browser.Browser, opts ...Option) *Checker {
	return &Checker{
		store:   store,
		browser: b,
		opts:    buildOptions(opts),
	}
}

// IsBooked fails open: any error while inspecting the page reports the slot
// as available, since a later submission re-checks anyway.
func (c *Checker) IsBooked(ctx context.Context, href string) (booked bool) {
	logger := c.opts.logger.With("href", href)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("availability check panicked", "panic", r)
			booked = false
		}
	}()

	rec, err := c.store.Find(ctx, href)
	if err != nil {
		logger.Warn("status lookup failed, checking live page", "error", err)
	} else if rec != nil && rec.Status == appointment.StatusBooked {
		c.opts.metrics.ObserveCheck("store", true)
		return true
	}

	start := time.Now()
	defer func() {
		c.opts.metrics.ObserveDuration("check", time.Since(start).Seconds())
	}()

	page, err := c.browser.Open(ctx, browser.SessionOptions{BlockResources: browser.NonEssentialResources})
	if err != nil {
		logger.Warn("failed to open page session", "error", err)
		return false
	}
	c.opts.metrics.SessionOpened()
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close page session", "error", err)
		}
		c.opts.metrics.SessionClosed()
	}()

	if err := page.Navigate(ctx, href); err != nil {
		logger.Warn("failed to load appointment page", "error", err)
		return false
	}

	text, found := page.ContainsAnyPhrase(ctx, bannerContainers, unavailablePhrases)
	c.opts.metrics.ObserveCheck("page", found)
	if !found {
		return false
	}

	logger.Info("slot is no longer available", "banner", text)
	in := appointment.UpsertInput{
		Href:    href,
		Status:  appointment.StatusBooked,
		Message: "slot unavailable: " + text,
	}
	if rec != nil {
		in.Patient = rec.Patient
	}
	wctx, cancel := writeBackCtx(ctx)
	defer cancel()
	if _, err := c.store.Upsert(wctx, in); err != nil {
		logger.Error("failed to record unavailable slot", "error", err)
	}
	return true
}
