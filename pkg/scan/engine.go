// Package scan implements the deep-scan orchestrator: a single-flight,
// sequential, cancellable state machine that drives browser tabs through
// load, authenticate, query, extract, and teardown for each requested
// platform, then submits the aggregate to the backend analyzer.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/osintkit/deepscan/pkg/authdetect"
	"github.com/osintkit/deepscan/pkg/backend"
	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/keepalive"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/tab"
)

// Config holds the orchestrator's timing knobs. Zero values take defaults.
type Config struct {
	// PageLoadTimeout bounds the wait for a tab to reach load-complete.
	PageLoadTimeout time.Duration
	// SettleDelay lets the page's scripts render before the auth probe.
	SettleDelay time.Duration
	// ExtractionTimeout bounds the wait for extraction results.
	ExtractionTimeout time.Duration
	// SearchSettle is the pause after dispatching an interactive search.
	SearchSettle time.Duration
	// RetryBaseDelay is the first backoff step; it doubles per retry.
	RetryBaseDelay time.Duration
	// MaxRetries is the number of re-attempts after the first try.
	MaxRetries uint
	// PollInterval is the cadence for checking platform result state.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 20 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = 20 * time.Second
	}
	if c.SearchSettle <= 0 {
		c.SearchSettle = 3 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 3 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Engine is the scan orchestrator. At most one scan runs at a time; a second
// start while one is running fails with profile.ErrScanInProgress.
type Engine struct {
	tabs       tab.Controller
	hub        *bus.Hub
	keeper     *keepalive.Keeper
	backend    *backend.Client
	logger     *slog.Logger
	cfg        Config
	detector   *authdetect.Detector
	extractors map[platform.ID]extractor.Extractor

	mu      sync.Mutex
	current *profile.Scan
	cancel  context.CancelFunc
	done    chan struct{}

	stopEvents func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConfig replaces the timing configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg.withDefaults() }
}

// WithKeepAlive sets the keep-alive held for the scan's lifetime.
func WithKeepAlive(k *keepalive.Keeper) Option {
	return func(e *Engine) { e.keeper = k }
}

// WithBackend sets the analyzer client used for result submission.
func WithBackend(b *backend.Client) Option {
	return func(e *Engine) { e.backend = b }
}

// WithDetector sets the auth detector shared by the default extractors.
func WithDetector(d *authdetect.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithExtractor overrides the extractor for one platform. Tests use this to
// substitute scripted extractors.
func WithExtractor(ext extractor.Extractor) Option {
	return func(e *Engine) { e.extractors[ext.Platform()] = ext }
}

// New creates an Engine wired to the registered platform extractors and
// begins consuming extraction events from the hub.
func New(tabs tab.Controller, hub *bus.Hub, opts ...Option) *Engine {
	e := &Engine{
		tabs:       tabs,
		hub:        hub,
		logger:     slog.Default(),
		cfg:        Config{}.withDefaults(),
		extractors: make(map[platform.ID]extractor.Extractor),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector == nil {
		e.detector = authdetect.New(authdetect.WithLogger(e.logger))
	}
	if e.keeper == nil {
		e.keeper = keepalive.New(nil, keepalive.WithLogger(e.logger))
	}

	deps := extractor.Deps{Hub: hub, Detector: e.detector, Logger: e.logger}
	for _, desc := range platform.All() {
		if _, ok := e.extractors[desc.ID]; ok || !extractor.Registered(desc.ID) {
			continue
		}
		if ext, err := extractor.New(desc.ID, deps); err == nil {
			e.extractors[desc.ID] = ext
		}
	}

	events, cancel := hub.Subscribe(0)
	e.stopEvents = cancel
	go e.consumeEvents(events)
	return e
}

// Close stops event consumption. It does not cancel a running scan.
func (e *Engine) Close() {
	if e.stopEvents != nil {
		e.stopEvents()
	}
}

// Start begins a scan. It returns the scan id immediately; the scan itself
// runs in the background and reports through hub events.
func (e *Engine) Start(ctx context.Context, t profile.IdentifierType, value string, platforms []platform.ID) (string, error) {
	e.mu.Lock()
	if e.current != nil && e.current.Status == profile.StatusRunning {
		e.mu.Unlock()
		return "", profile.ErrScanInProgress
	}

	scan, err := profile.NewScan(t, value, platforms)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.current = scan
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.keeper.Start(runCtx)
	e.logger.InfoContext(ctx, "scan started",
		"scan_id", scan.ID, "identifier_type", t, "platforms", platforms)
	e.hub.Publish(bus.Event{Kind: bus.EventScanStarted, Data: map[string]any{"scanId": scan.ID}})

	go func() {
		defer close(done)
		e.run(runCtx, scan)
	}()
	return scan.ID, nil
}

// Cancel stops the running scan. No backend submission happens for a
// cancelled scan, and the keep-alive is released.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	scan := e.current
	if scan == nil || scan.Status != profile.StatusRunning {
		e.mu.Unlock()
		return profile.ErrNoScan
	}
	scan.Status = profile.StatusCancelled
	scan.EndTime = time.Now()
	cancel := e.cancel
	e.cancel = nil
	scanID := scan.ID
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.keeper.Stop()
	e.logger.InfoContext(ctx, "scan cancelled", "scan_id", scanID)
	e.hub.Publish(bus.Event{Kind: bus.EventScanCancelled, Data: map[string]any{"scanId": scanID}})
	return nil
}

// Status returns a snapshot of the current scan, or nil when none exists.
func (e *Engine) Status() *profile.Scan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Clone()
}

// Wait blocks until the active scan's goroutine exits. Returns immediately
// when no scan is active.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run drives the platform loop. Platforms execute strictly sequentially in
// request order; cancellation is observed between platforms.
func (e *Engine) run(ctx context.Context, scan *profile.Scan) {
	defer e.keeper.Stop()

	query := profile.SearchQuery(scan.IdentifierType, scan.IdentifierValue)

	for _, id := range scan.Platforms {
		e.mu.Lock()
		if scan.Status != profile.StatusRunning {
			e.mu.Unlock()
			return
		}
		scan.CurrentPlatform = id
		e.mu.Unlock()

		e.scanPlatform(ctx, scan, id, query)

		e.mu.Lock()
		if scan.Status != profile.StatusRunning {
			e.mu.Unlock()
			return
		}
		scan.MarkCompleted(id)
		progress := scan.Progress
		completed := append([]platform.ID(nil), scan.CompletedPlatforms...)
		e.mu.Unlock()

		e.hub.Publish(bus.Event{Kind: bus.EventScanProgress, Data: map[string]any{
			"platform":           id,
			"progress":           progress,
			"completedPlatforms": completed,
		}})
	}

	e.finish(ctx, scan)
}

func (e *Engine) finish(ctx context.Context, scan *profile.Scan) {
	e.mu.Lock()
	if scan.Status != profile.StatusRunning {
		e.mu.Unlock()
		return
	}
	scan.Status = profile.StatusCompleted
	scan.EndTime = time.Now()
	scan.CurrentPlatform = ""
	snapshot := scan.Clone()
	e.mu.Unlock()

	if e.backend != nil {
		if err := e.backend.SubmitScan(ctx, snapshot); err != nil {
			e.logger.WarnContext(ctx, "backend submission failed", "scan_id", scan.ID, "error", err)
			e.mu.Lock()
			scan.BackendError = err.Error()
			snapshot = scan.Clone()
			e.mu.Unlock()
		}
	}

	e.logger.InfoContext(ctx, "scan completed",
		"scan_id", scan.ID, "progress", snapshot.Progress, "platforms", len(snapshot.Results))
	e.hub.Publish(bus.Event{Kind: bus.EventScanCompleted, Data: map[string]any{
		"scanId":   scan.ID,
		"results":  snapshot.Results,
		"analysis": snapshot.BackendAnalysis,
	}})
}

// consumeEvents applies extraction events published by extractors to the
// current scan's platform results.
func (e *Engine) consumeEvents(events <-chan bus.Event) {
	for ev := range events {
		switch ev.Kind {
		case bus.EventSearchResults:
			if data, ok := ev.Data.(extractor.SearchResultsEvent); ok {
				e.applySearchResults(data)
			}
		case bus.EventProfileData:
			if data, ok := ev.Data.(extractor.ProfileDataEvent); ok {
				e.applyProfile(data)
			}
		case bus.EventAuthRequired:
			if data, ok := ev.Data.(extractor.AuthRequiredEvent); ok {
				e.applyAuthRequired(data)
			}
		default:
		}
	}
}

func (e *Engine) applySearchResults(data extractor.SearchResultsEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.resultFor(data.Platform)
	if result == nil {
		return
	}
	result.SearchResults = data.Profiles
	if result.Status == profile.ResultScanning {
		result.Status = profile.ResultCompleted
	}
}

func (e *Engine) applyProfile(data extractor.ProfileDataEvent) {
	if !data.Profile.Identified() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.resultFor(data.Platform)
	if result == nil {
		return
	}
	for _, existing := range result.Profiles {
		if sameProfile(existing, data.Profile) {
			return
		}
	}
	result.Profiles = append(result.Profiles, data.Profile)
	if result.Status == profile.ResultScanning {
		result.Status = profile.ResultCompleted
	}
}

func (e *Engine) applyAuthRequired(data extractor.AuthRequiredEvent) {
	desc, err := platform.Lookup(data.Platform)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result := e.resultFor(data.Platform)
	if result == nil || result.Status.Terminal() {
		return
	}
	result.Status = profile.ResultAuthRequired
	result.Errors = append(result.Errors, profile.PlatformError{
		Kind:       profile.KindAuthRequired,
		Message:    fmt.Sprintf("Not logged in to %s", desc.Name),
		Suggestion: fmt.Sprintf("Log in to %s and run the scan again", desc.Name),
		LoginURL:   data.LoginURL,
	})
}

// resultFor returns the live platform result for the current scan. Callers
// hold e.mu.
func (e *Engine) resultFor(id platform.ID) *profile.PlatformResult {
	if e.current == nil {
		return nil
	}
	return e.current.Results[id]
}

func sameProfile(a, b *profile.Profile) bool {
	if a.ProfileURL != "" && a.ProfileURL == b.ProfileURL {
		return true
	}
	return a.Username != "" && a.Username == b.Username
}
