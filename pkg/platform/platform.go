// Package platform defines the closed set of scannable platforms and their
// static descriptors: search URL templates, profile URL patterns, login URLs,
// and the cookie/DOM markers used for authentication detection.
package platform

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ID identifies a supported platform.
type ID string

// Supported platform identifiers. This set is closed: scan requests naming
// any other id are rejected at entry.
const (
	Facebook  ID = "facebook"
	Instagram ID = "instagram"
	LinkedIn  ID = "linkedin"
	X         ID = "x"
)

// ErrUnknownPlatform is returned when a platform id is not in the closed set.
var ErrUnknownPlatform = errors.New("unknown platform")

// Descriptor holds the static configuration for one platform.
type Descriptor struct {
	ID          ID
	Name        string // display name
	Emoji       string // display glyph
	SearchURL   string // prefix; the url-encoded query is appended
	RootURL     string
	LoginURL    string
	ProfileRe   *regexp.Regexp // matches profile page URLs
	SearchRe    *regexp.Regexp // matches search-results page URLs
	Hostnames   []string       // accepted hostnames (x also answers on twitter.com)
	AuthCookies []string       // any one of these present means a session exists

	// DOM markers consulted by the auth detector.
	LoggedInSelectors  []string
	LoginPageSelectors []string
	LoginPaths         []string // URL path fragments that indicate a login/checkpoint page

	// InteractiveSearch platforms cannot be queried by URL; the extractor
	// drives an in-page search input instead.
	InteractiveSearch bool
}

var descriptors = map[ID]*Descriptor{
	Facebook: {
		ID:        Facebook,
		Name:      "Facebook",
		Emoji:     "📘",
		SearchURL: "https://www.facebook.com/search/people/?q=",
		RootURL:   "https://www.facebook.com/",
		LoginURL:  "https://www.facebook.com/login",
		ProfileRe: regexp.MustCompile(`(?i)facebook\.com/(?:profile\.php\?id=\d+|[a-zA-Z0-9.]+)/?$`),
		SearchRe:  regexp.MustCompile(`(?i)facebook\.com/search/people`),
		Hostnames: []string{"facebook.com", "www.facebook.com", "m.facebook.com"},

		AuthCookies:        []string{"c_user", "xs"},
		LoggedInSelectors:  []string{`[aria-label="Your profile"]`, `[aria-label="Account"]`, `[data-pagelet="LeftRail"]`},
		LoginPageSelectors: []string{`#loginbutton`, `[data-testid="royal-login-form"]`, `form[action*="login"]`},
		LoginPaths:         []string{"/login", "/checkpoint", "/recover"},
	},
	Instagram: {
		ID:        Instagram,
		Name:      "Instagram",
		Emoji:     "📷",
		SearchURL: "https://www.instagram.com/",
		RootURL:   "https://www.instagram.com/",
		LoginURL:  "https://www.instagram.com/accounts/login/",
		ProfileRe: regexp.MustCompile(`(?i)instagram\.com/[a-zA-Z0-9_.]+/?$`),
		SearchRe:  regexp.MustCompile(`(?i)instagram\.com/?$`),
		Hostnames: []string{"instagram.com", "www.instagram.com"},

		AuthCookies:        []string{"sessionid", "ds_user_id"},
		LoggedInSelectors:  []string{`svg[aria-label="Home"]`, `[aria-label="New post"]`, `nav[role="navigation"]`},
		LoginPageSelectors: []string{`input[name="username"]`, `form[id="loginForm"]`},
		LoginPaths:         []string{"/accounts/login", "/challenge"},

		InteractiveSearch: true,
	},
	LinkedIn: {
		ID:        LinkedIn,
		Name:      "LinkedIn",
		Emoji:     "💼",
		SearchURL: "https://www.linkedin.com/search/results/people/?keywords=",
		RootURL:   "https://www.linkedin.com/",
		LoginURL:  "https://www.linkedin.com/login",
		ProfileRe: regexp.MustCompile(`(?i)linkedin\.com/in/[a-zA-Z0-9\-_%]+/?`),
		SearchRe:  regexp.MustCompile(`(?i)linkedin\.com/search/results/people`),
		Hostnames: []string{"linkedin.com", "www.linkedin.com"},

		AuthCookies:        []string{"li_at", "JSESSIONID"},
		LoggedInSelectors:  []string{`.global-nav__me`, `[data-control-name="nav.settings"]`, `#global-nav`},
		LoginPageSelectors: []string{`#username`, `.login__form`, `form.login-form`},
		LoginPaths:         []string{"/login", "/checkpoint", "/uas/login"},
	},
	X: {
		ID:        X,
		Name:      "X (Twitter)",
		Emoji:     "🐦",
		SearchURL: "https://x.com/search?q=",
		RootURL:   "https://x.com/",
		LoginURL:  "https://x.com/i/flow/login",
		ProfileRe: regexp.MustCompile(`(?i)(?:x|twitter)\.com/[a-zA-Z0-9_]+/?$`),
		SearchRe:  regexp.MustCompile(`(?i)(?:x|twitter)\.com/search`),
		Hostnames: []string{"x.com", "www.x.com", "twitter.com", "www.twitter.com"},

		AuthCookies:        []string{"auth_token", "ct0"},
		LoggedInSelectors:  []string{`[aria-label="Profile"]`, `[data-testid="SideNav_AccountSwitcher_Button"]`, `[data-testid="AppTabBar_Home_Link"]`},
		LoginPageSelectors: []string{`input[autocomplete="username"]`, `[data-testid="LoginForm"]`},
		LoginPaths:         []string{"/i/flow/login", "/login", "/account/access"},
	},
}

// scanOrder is the canonical ordering used by All. Map iteration order is
// random; the descriptor table itself is keyed for lookup.
var scanOrder = []ID{Facebook, Instagram, LinkedIn, X}

// Lookup returns the descriptor for the given id.
func Lookup(id ID) (*Descriptor, error) {
	d, ok := descriptors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
	}
	return d, nil
}

// Valid reports whether id is a member of the closed platform set.
func Valid(id ID) bool {
	_, ok := descriptors[id]
	return ok
}

// All returns every descriptor in canonical order.
func All() []*Descriptor {
	out := make([]*Descriptor, 0, len(scanOrder))
	for _, id := range scanOrder {
		out = append(out, descriptors[id])
	}
	return out
}

// SearchURLFor composes the people-search URL for a query. Interactive-search
// platforms return their root URL; the query is driven in-page instead.
func (d *Descriptor) SearchURLFor(query string) string {
	if d.InteractiveSearch {
		return d.RootURL
	}
	return d.SearchURL + url.QueryEscape(query)
}

// Owns reports whether the URL belongs to this platform, matching any of its
// accepted hostnames.
func (d *Descriptor) Owns(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range d.Hostnames {
		if host == h {
			return true
		}
	}
	return false
}

// IsLoginURL reports whether the URL points at a login or checkpoint page.
func (d *Descriptor) IsLoginURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, p := range d.LoginPaths {
		if strings.HasPrefix(path, p) || strings.Contains(path, p) {
			return true
		}
	}
	return false
}

// systemPaths are first path segments that can match the loose profile
// patterns but never identify a person.
var systemPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "stories": true, "explore": true,
	"direct": true, "accounts": true, "search": true, "login": true,
	"watch": true, "marketplace": true, "groups": true, "events": true,
	"home": true, "notifications": true, "messages": true, "settings": true,
	"i": true, "about": true, "legal": true, "privacy": true, "terms": true,
	"help": true, "policies": true, "profile.php": false, // profile.php is a profile
}

// IsProfileURL reports whether the URL looks like a single profile page.
func (d *Descriptor) IsProfileURL(rawURL string) bool {
	if !d.Owns(rawURL) || d.IsLoginURL(rawURL) || !d.ProfileRe.MatchString(rawURL) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	seg := strings.ToLower(strings.Trim(u.Path, "/"))
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	return seg != "" && !systemPaths[seg]
}

// IsSearchURL reports whether the URL looks like a people-search results page.
func (d *Descriptor) IsSearchURL(rawURL string) bool {
	return d.Owns(rawURL) && d.SearchRe.MatchString(rawURL)
}

// Validate checks a requested platform list: every id must be in the closed
// set and the list must be non-empty. Order is preserved by the caller.
func Validate(ids []ID) error {
	if len(ids) == 0 {
		return errors.New("no platforms requested")
	}
	for _, id := range ids {
		if !Valid(id) {
			return fmt.Errorf("%w: %q", ErrUnknownPlatform, id)
		}
	}
	return nil
}
