// In-memory controller for tests: serves canned pages by URL, with
// configurable load behavior per URL.

package tab

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// FakePage is the canned content served for one URL.
type FakePage struct {
	Content   string
	CookieMap map[string]string
	// FinalURL overrides the reported URL (redirect simulation).
	FinalURL string

	mu      sync.Mutex
	inputs  map[string]string
	clicks  []string
	pageURL string
	visible map[string]bool
}

// Inputs returns the selector to value map recorded by SetValue calls.
func (p *FakePage) Inputs() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.inputs))
	for k, v := range p.inputs {
		out[k] = v
	}
	return out
}

// Clicks returns the selectors clicked, in order.
func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Fake is an in-memory Controller. Zero value is not usable; call NewFake.
type Fake struct {
	mu         sync.Mutex
	pages      map[string]*FakePage
	neverLoad  map[string]bool
	loadDelays map[string]time.Duration
	tabs       map[ID]*fakeTab
	nextID     int
	created    []string
	open       int
	maxOpen    int
	closeCount map[ID]int
}

type fakeTab struct {
	url    string
	page   *FakePage
	loaded chan struct{}
	closed bool
}

// NewFake creates an empty fake controller.
func NewFake() *Fake {
	return &Fake{
		pages:      make(map[string]*FakePage),
		neverLoad:  make(map[string]bool),
		loadDelays: make(map[string]time.Duration),
		tabs:       make(map[ID]*fakeTab),
		closeCount: make(map[ID]int),
	}
}

// Serve registers canned content for a URL. Matching is by prefix so query
// strings composed by the orchestrator still hit.
func (f *Fake) Serve(urlPrefix string, page *FakePage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if page.inputs == nil {
		page.inputs = make(map[string]string)
	}
	if page.visible == nil {
		page.visible = make(map[string]bool)
	}
	f.pages[urlPrefix] = page
}

// NeverLoad marks a URL prefix whose tabs never reach load-complete.
func (f *Fake) NeverLoad(urlPrefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.neverLoad[urlPrefix] = true
}

// DelayLoad makes tabs for a URL prefix load after d.
func (f *Fake) DelayLoad(urlPrefix string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadDelays[urlPrefix] = d
}

// CreatedURLs returns every URL opened, in order.
func (f *Fake) CreatedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// MaxOpen returns the highest number of simultaneously open tabs observed.
func (f *Fake) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

// OpenCount returns the number of currently open tabs.
func (f *Fake) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// CloseCalls returns how many times Close was called for id.
func (f *Fake) CloseCalls(id ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount[id]
}

func (f *Fake) match(url string) (*FakePage, bool, time.Duration) {
	var best string
	var page *FakePage
	for prefix, p := range f.pages {
		if len(prefix) > len(best) && hasPrefix(url, prefix) {
			best, page = prefix, p
		}
	}
	never := false
	var delay time.Duration
	for prefix := range f.neverLoad {
		if hasPrefix(url, prefix) {
			never = true
		}
	}
	for prefix, d := range f.loadDelays {
		if hasPrefix(url, prefix) {
			delay = d
		}
	}
	return page, never, delay
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Create opens a fake tab.
func (f *Fake) Create(_ context.Context, url string, _ bool) (ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	page, never, delay := f.match(url)
	if page == nil {
		page = &FakePage{inputs: make(map[string]string), visible: make(map[string]bool)}
	}
	page.mu.Lock()
	page.pageURL = url
	if page.FinalURL != "" {
		page.pageURL = page.FinalURL
	}
	page.mu.Unlock()

	f.nextID++
	id := ID("fake-" + strconv.Itoa(f.nextID))
	t := &fakeTab{url: url, page: page, loaded: make(chan struct{})}
	f.tabs[id] = t
	f.created = append(f.created, url)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}

	if !never {
		if delay == 0 {
			close(t.loaded)
		} else {
			go func() {
				time.Sleep(delay)
				close(t.loaded)
			}()
		}
	}
	return id, nil
}

// AwaitLoad waits for the fake load signal.
func (f *Fake) AwaitLoad(ctx context.Context, id ID, timeout time.Duration) error {
	f.mu.Lock()
	t, ok := f.tabs[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabClosed, id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.loaded:
		return nil
	case <-timer.C:
		return ErrLoadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the tab; repeat closes are no-ops.
func (f *Fake) Close(id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCount[id]++
	t, ok := f.tabs[id]
	if !ok || t.closed {
		return nil
	}
	t.closed = true
	f.open--
	return nil
}

// Page returns the page surface for id.
func (f *Fake) Page(id ID) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tabs[id]
	if !ok || t.closed {
		return nil, fmt.Errorf("%w: %s", ErrTabClosed, id)
	}
	return t.page, nil
}

// FakePage implements Page.

func (p *FakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageURL, nil
}

func (p *FakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Content, nil
}

func (p *FakePage) Cookies(context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.CookieMap))
	for k, v := range p.CookieMap {
		out[k] = v
	}
	return out, nil
}

func (p *FakePage) SetValue(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inputs == nil {
		p.inputs = make(map[string]string)
	}
	p.inputs[selector] = value
	return nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	return nil
}

func (p *FakePage) WaitVisible(_ context.Context, _ string, _ time.Duration) error {
	return nil
}

var (
	_ Controller = (*Fake)(nil)
	_ Page       = (*FakePage)(nil)
)
