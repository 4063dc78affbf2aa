package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/browser"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

const testHref = "https://booking.example.com/book?clinicianId=c-42&date=2026-11-02&time=09:30"

var testPatient = appointment.PatientData{
	FirstName:   "Ada",
	LastName:    "Lovelace",
	DateOfBirth: "1815-12-10",
	Email:       "ada@example.com",
	Phone:       "555-0100",
}

// fakePage is a scripted page. visible holds the selectors that resolve;
// body is the visible text, replaced by afterClick[sel] when sel is clicked.
type fakePage struct {
	mu sync.Mutex

	navigateErr error
	visible     map[string]bool
	body        []string
	afterClick  map[string][]string
	errorText   []string
	clickErr    map[string]error
	typeErr     map[string]error
	panicOnNav  bool
	onClick     map[string]func()
	onScan      func()

	opts       browser.SessionOptions
	navigated  []string
	clicks     []string
	typed      map[string]string
	phraseRuns int
	closed     bool
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnNav {
		panic("renderer crashed")
	}
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakePage) FindFirstMatching(ctx context.Context, selectors []string, perSelector time.Duration) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sel := range selectors {
		if p.visible[sel] {
			return sel, true
		}
	}
	return "", false
}

func (p *fakePage) ContainsAnyPhrase(ctx context.Context, containers []string, phrases []string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phraseRuns++
	if p.onScan != nil {
		p.onScan()
	}
	return browser.MatchPhrase(p.body, phrases)
}

func (p *fakePage) VisibleText(ctx context.Context, containers []string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorText, nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	if err := p.clickErr[selector]; err != nil {
		return err
	}
	if next, ok := p.afterClick[selector]; ok {
		p.body = next
	}
	if hook := p.onClick[selector]; hook != nil {
		hook()
	}
	return nil
}

func (p *fakePage) Type(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.typeErr[selector]; err != nil {
		return err
	}
	if p.typed == nil {
		p.typed = make(map[string]string)
	}
	p.typed[selector] = value
	return nil
}

func (p *fakePage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeBrowser builds a fresh page from newPage on every Open.
type fakeBrowser struct {
	mu      sync.Mutex
	newPage func() *fakePage
	openErr error
	pages   []*fakePage
}

func (b *fakeBrowser) Open(ctx context.Context, opts browser.SessionOptions) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	p := b.newPage()
	p.opts = opts
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

func (b *fakeBrowser) allClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pages {
		if !p.closed {
			return false
		}
	}
	return true
}

// failingStore fails every write.
type failingStore struct {
	Store
}

func (failingStore) Upsert(ctx context.Context, in appointment.UpsertInput) (*appointment.Record, error) {
	return nil, errors.New("database is down")
}

// cancellableStore refuses writes once ctx is done, as the pgx pool does.
type cancellableStore struct {
	Store
}

func (s cancellableStore) Upsert(ctx context.Context, in appointment.UpsertInput) (*appointment.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.Upsert(ctx, in)
}

func newTestStore() *appointment.Service {
	return appointment.NewService(appointment.NewInMemoryRepository(), nil, testLogger())
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

// bookingPage is a form that accepts the submission.
func bookingPage() *fakePage {
	return &fakePage{
		visible: map[string]bool{
			guestSelectors[0]:           true,
			"input[name='firstName']":   true,
			"input[name='lastName']":    true,
			"input[name='dateOfBirth']": true,
			"input[name='email']":       true,
			"input[name='phone']":       true,
			submitSelectors[0]:          true,
		},
		body: []string{"Request an appointment with Dr. Hopper"},
		afterClick: map[string][]string{
			submitSelectors[0]: {"Your request has been received", "We will be in touch."},
		},
	}
}
