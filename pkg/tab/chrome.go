// Chrome-backed tab controller using the DevTools protocol.

package tab

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Chrome drives tabs in a real Chrome or Chromium instance over CDP.
type Chrome struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *slog.Logger

	mu     sync.Mutex
	tabs   map[ID]*chromeTab
	nextID atomic.Int64
}

type chromeTab struct {
	ctx       context.Context
	cancel    context.CancelFunc
	loaded    chan struct{}
	loadOnce  sync.Once
	closeOnce sync.Once
	loadErr   error
}

// ChromeOption configures the Chrome controller.
type ChromeOption func(*chromeConfig)

type chromeConfig struct {
	logger      *slog.Logger
	execPath    string
	userDataDir string
	headless    bool
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ChromeOption {
	return func(c *chromeConfig) { c.logger = logger }
}

// WithExecPath sets an explicit Chrome binary path.
func WithExecPath(path string) ChromeOption {
	return func(c *chromeConfig) { c.execPath = path }
}

// WithUserDataDir points Chrome at an existing profile directory so platform
// sessions (cookies) are available to the scan.
func WithUserDataDir(dir string) ChromeOption {
	return func(c *chromeConfig) { c.userDataDir = dir }
}

// WithHeadless runs the browser without a window.
func WithHeadless() ChromeOption {
	return func(c *chromeConfig) { c.headless = true }
}

// NewChrome launches a browser and returns a controller bound to it.
func NewChrome(ctx context.Context, opts ...ChromeOption) (*Chrome, error) {
	cfg := &chromeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		// Scans run in background tabs; Chrome must not throttle or
		// suspend them mid-extraction.
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("window-size", "1920,1080"),
	)
	if !cfg.headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if cfg.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.execPath))
	}
	if cfg.userDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(cfg.userDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser up front so Create failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	cfg.logger.InfoContext(ctx, "browser launched", "headless", cfg.headless)

	return &Chrome{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        cfg.logger,
		tabs:          make(map[ID]*chromeTab),
	}, nil
}

// Create opens a new tab and begins navigation. Navigation completion is
// observed through AwaitLoad.
func (c *Chrome) Create(ctx context.Context, url string, _ bool) (ID, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)

	t := &chromeTab{
		ctx:    tabCtx,
		cancel: tabCancel,
		loaded: make(chan struct{}),
	}

	// Signal on the load event; Navigate below also signals when it
	// returns, which covers pages that finished before the listener fired.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			t.loadOnce.Do(func() { close(t.loaded) })
		}
	})

	id := ID("tab-" + strconv.FormatInt(c.nextID.Add(1), 10))
	c.mu.Lock()
	c.tabs[id] = t
	c.mu.Unlock()

	go func() {
		err := chromedp.Run(tabCtx, chromedp.Navigate(url))
		t.loadOnce.Do(func() {
			t.loadErr = err
			close(t.loaded)
		})
	}()

	c.logger.DebugContext(ctx, "tab created", "tab", id, "url", url)
	return id, nil
}

// AwaitLoad waits for the tab's load event, bounded by timeout.
func (c *Chrome) AwaitLoad(ctx context.Context, id ID, timeout time.Duration) error {
	t, err := c.tab(id)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.loaded:
		return t.loadErr
	case <-timer.C:
		return ErrLoadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close destroys the tab. Unknown ids and repeat closes are no-ops.
func (c *Chrome) Close(id ID) error {
	c.mu.Lock()
	t, ok := c.tabs[id]
	delete(c.tabs, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	t.closeOnce.Do(t.cancel)
	c.logger.Debug("tab closed", "tab", id)
	return nil
}

// Page returns the in-tab surface for id.
func (c *Chrome) Page(id ID) (Page, error) {
	t, err := c.tab(id)
	if err != nil {
		return nil, err
	}
	return &chromePage{tab: t}, nil
}

// Shutdown closes every tab and the browser.
func (c *Chrome) Shutdown() {
	c.mu.Lock()
	for id, t := range c.tabs {
		t.closeOnce.Do(t.cancel)
		delete(c.tabs, id)
	}
	c.mu.Unlock()
	c.browserCancel()
	c.allocCancel()
}

func (c *Chrome) tab(id ID) (*chromeTab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabClosed, id)
	}
	return t, nil
}

type chromePage struct {
	tab *chromeTab
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var out string
	if err := p.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return out, nil
}

func (p *chromePage) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out[ck.Name] = ck.Value
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *chromePage) SetValue(ctx context.Context, selector, value string) error {
	// SetValue alone does not notify framework listeners; dispatch the
	// synthetic events a real keystroke would produce.
	const fire = `(function(sel){
		const el = document.querySelector(sel);
		if (!el) return false;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})(%q)`
	var ok bool
	return p.run(ctx,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(fire, selector), &ok),
	)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case <-p.tab.ctx.Done():
		return ErrTabClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return chromedp.Run(p.tab.ctx, actions...)
}

var _ Controller = (*Chrome)(nil)
