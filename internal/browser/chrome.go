package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultActionTimeout     = 10 * time.Second
	idleWindow               = 500 * time.Millisecond
	idlePoll                 = 100 * time.Millisecond
)

// Chrome drives Chrome over the DevTools protocol. With a websocket URL it
// attaches to a running browser; without one it launches a local headless
// instance.
type Chrome struct {
	allocCtx   context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *logging.Logger
}

// ChromeOption is a functional option for configuring Chrome.
type ChromeOption func(*Chrome)

// WithNavigationTimeout bounds each Navigate call.
func WithNavigationTimeout(d time.Duration) ChromeOption {
	return func(c *Chrome) {
		if d > 0 {
			c.navTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ChromeOption {
	return func(c *Chrome) {
		c.logger = logger
	}
}

func NewChrome(wsURL string, opts ...ChromeOption) *Chrome {
	c := &Chrome{
		navTimeout: defaultNavigationTimeout,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if wsURL != "" {
		c.allocCtx, c.cancel = chromedp.NewRemoteAllocator(context.Background(), wsURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.DisableGPU,
		)
		c.allocCtx, c.cancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
	}
	return c
}

// Close disconnects from (or shuts down) the browser.
func (c *Chrome) Close() {
	c.cancel()
}

// Open creates a new tab. The tab is bound to the allocator, not to ctx;
// ctx only bounds how long we wait for it.
func (c *Chrome) Open(ctx context.Context, opts SessionOptions) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(c.allocCtx)
	p := &chromePage{
		ctx:        tabCtx,
		cancel:     cancel,
		navTimeout: c.navTimeout,
		inflight:   make(map[network.RequestID]struct{}),
		logger:     c.logger,
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	actions := []chromedp.Action{network.Enable()}
	if len(opts.BlockResources) > 0 {
		patterns := make([]*fetch.RequestPattern, 0, len(opts.BlockResources))
		for _, rt := range opts.BlockResources {
			patterns = append(patterns, &fetch.RequestPattern{
				URLPattern:   "*",
				ResourceType: network.ResourceType(rt),
				RequestStage: fetch.RequestStageRequest,
			})
		}
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(tabCtx, actions...) }()

	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("browser: open tab: %w", err)
		}
		return p, nil
	case <-ctx.Done():
		cancel()
		return nil, fmt.Errorf("browser: open tab: %w", ctx.Err())
	}
}

type chromePage struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *logging.Logger
	closeOnce  sync.Once

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
}

func (p *chromePage) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[e.RequestID] = struct{}{}
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.done(e.RequestID)
	case *network.EventLoadingFailed:
		p.done(e.RequestID)
	case *fetch.EventRequestPaused:
		// Only blocked resource types are intercepted. Listeners must not
		// block, so the CDP call goes on its own goroutine.
		go func() {
			c := chromedp.FromContext(p.ctx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(p.ctx, c.Target)
			if err := fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
				p.logger.Debug("browser: fail blocked request", "url", e.Request.URL, "error", err)
			}
		}()
	}
}

func (p *chromePage) done(id network.RequestID) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *chromePage) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// actionCtx derives a context from the tab that is also cancelled when the
// caller's ctx is done.
func (p *chromePage) actionCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithCancel(p.ctx)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		actx, cancelTimeout = context.WithTimeout(actx, timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	actx, done := p.actionCtx(ctx, p.navTimeout)
	defer done()

	if err := chromedp.Run(actx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) FindFirstMatching(ctx context.Context, selectors []string, perSelector time.Duration) (string, bool) {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return "", false
		}
		actx, done := p.actionCtx(ctx, perSelector)
		err := chromedp.Run(actx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		done()
		if err == nil {
			return sel, true
		}
		p.logger.Debug("browser: selector not visible", "selector", sel, "error", err)
	}
	return "", false
}

const visibleTextJS = `(function(sels) {
	const out = [];
	for (const s of sels) {
		try {
			document.querySelectorAll(s).forEach(function(el) {
				const t = (el.innerText || '').trim();
				if (t) out.push(t);
			});
		} catch (e) {}
	}
	return out;
})(%s)`

func (p *chromePage) VisibleText(ctx context.Context, containers []string) ([]string, error) {
	if len(containers) == 0 {
		return nil, nil
	}
	arg, err := json.Marshal(containers)
	if err != nil {
		return nil, fmt.Errorf("browser: encode selectors: %w", err)
	}

	actx, done := p.actionCtx(ctx, defaultActionTimeout)
	defer done()

	var texts []string
	if err := chromedp.Run(actx, chromedp.Evaluate(fmt.Sprintf(visibleTextJS, arg), &texts)); err != nil {
		return nil, fmt.Errorf("browser: read container text: %w", err)
	}
	return texts, nil
}

func (p *chromePage) bodyText(ctx context.Context) (string, error) {
	actx, done := p.actionCtx(ctx, defaultActionTimeout)
	defer done()

	var body string
	if err := chromedp.Run(actx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &body)); err != nil {
		return "", fmt.Errorf("browser: read body text: %w", err)
	}
	return body, nil
}

func (p *chromePage) ContainsAnyPhrase(ctx context.Context, containers []string, phrases []string) (string, bool) {
	texts, err := p.VisibleText(ctx, containers)
	if err != nil {
		p.logger.Debug("browser: container scan failed", "error", err)
	} else if text, ok := MatchPhrase(texts, phrases); ok {
		return text, true
	}

	body, err := p.bodyText(ctx)
	if err != nil {
		p.logger.Debug("browser: body scan failed", "error", err)
		return "", false
	}
	return MatchPhrase(strings.Split(body, "\n"), phrases)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	actx, done := p.actionCtx(ctx, defaultActionTimeout)
	defer done()

	if err := chromedp.Run(actx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, selector, value string) error {
	actx, done := p.actionCtx(ctx, defaultActionTimeout)
	defer done()

	if err := chromedp.Run(actx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: type into %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return ErrSessionClosed
		case <-deadline.C:
			return fmt.Errorf("browser: network still busy after %s (%d requests)", timeout, p.pending())
		case now := <-ticker.C:
			if p.pending() > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
				continue
			}
			if now.Sub(idleSince) >= idleWindow {
				return nil
			}
		}
	}
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}
