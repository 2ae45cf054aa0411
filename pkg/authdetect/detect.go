// Package authdetect determines whether a live browser tab represents an
// authenticated session on a social platform. Detection combines session
// cookie evidence with DOM evidence so a stale cookie on a login page never
// counts as logged in.
package authdetect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/osintkit/deepscan/pkg/htmlutil"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/tab"
)

// Verdict is the outcome of an authentication check on a single tab.
type Verdict struct {
	Platform      platform.ID `json:"platform"`
	Authenticated bool        `json:"isAuthenticated"`
	// LoginURL is set when not authenticated, so callers can direct the
	// user to sign in.
	LoginURL string `json:"loginUrl,omitempty"`
	// HasAuthCookie reports cookie evidence independent of DOM state.
	HasAuthCookie bool `json:"hasAuthCookie"`
}

// Detector evaluates authentication state for platform tabs.
type Detector struct {
	logger    *slog.Logger
	fallbacks []Source
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithFallbackSources adds cookie sources consulted when the tab itself has
// no auth cookies, in order.
func WithFallbackSources(sources ...Source) Option {
	return func(d *Detector) {
		d.fallbacks = append(d.fallbacks, sources...)
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect checks the tab's authentication state for the given platform.
//
// The session is authenticated when either: an auth cookie is present and the
// page is not a login page, or the DOM shows a logged-in element while the URL
// and DOM are both away from the login flow.
func (d *Detector) Detect(ctx context.Context, id platform.ID, page tab.Page) (*Verdict, error) {
	desc, err := platform.Lookup(id)
	if err != nil {
		return nil, err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tab cookies: %w", err)
	}
	hasAuthCookie := hasAny(cookies, desc.AuthCookies)
	if !hasAuthCookie && len(d.fallbacks) > 0 {
		fallback, ferr := ChainSources(ctx, id, d.fallbacks...)
		if ferr != nil {
			d.logger.DebugContext(ctx, "fallback cookie lookup failed", "platform", id, "error", ferr)
		}
		hasAuthCookie = hasAny(fallback, desc.AuthCookies)
	}

	url, err := page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tab url: %w", err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading tab html: %w", err)
	}

	onLoginURL := desc.IsLoginURL(url)
	onLoginPage := htmlutil.HasAny(html, desc.LoginPageSelectors)
	hasLoggedInDOM := htmlutil.HasAny(html, desc.LoggedInSelectors)

	authenticated := (hasAuthCookie && !onLoginPage) ||
		(hasLoggedInDOM && !onLoginURL && !onLoginPage)

	verdict := &Verdict{
		Platform:      id,
		Authenticated: authenticated,
		HasAuthCookie: hasAuthCookie,
	}
	if !authenticated {
		verdict.LoginURL = desc.LoginURL
	}

	d.logger.DebugContext(ctx, "authentication verdict",
		"platform", id,
		"authenticated", authenticated,
		"cookie", hasAuthCookie,
		"login_url_match", onLoginURL,
		"login_dom", onLoginPage,
		"logged_in_dom", hasLoggedInDOM)
	return verdict, nil
}

// LoginURL returns the platform's login page.
func LoginURL(id platform.ID) (string, error) {
	desc, err := platform.Lookup(id)
	if err != nil {
		return "", err
	}
	return desc.LoginURL, nil
}

func hasAny(cookies map[string]string, names []string) bool {
	for _, name := range names {
		if cookies[name] != "" {
			return true
		}
	}
	return false
}
