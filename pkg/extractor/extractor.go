// Package extractor defines the contract for per-platform page extractors.
// An extractor reads a loaded search-results or profile page and publishes
// normalized records as events; request replies are ack-sized only.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/osintkit/deepscan/pkg/authdetect"
	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/htmlutil"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/tab"
)

// Extractor reads a loaded platform page.
//
// ExtractSearchResults and ExtractProfileData deliver their findings by
// publishing SearchResultsEvent / ProfileDataEvent on the hub rather than
// returning them; the error return is the acknowledgement.
type Extractor interface {
	Platform() platform.ID
	CheckAuthentication(ctx context.Context, page tab.Page) (*authdetect.Verdict, error)
	ExtractSearchResults(ctx context.Context, page tab.Page, query Query) error
	ExtractProfileData(ctx context.Context, page tab.Page) error
	// OnPageLoad fires auto-extraction when the page is a recognized search
	// or profile page and the session is authenticated.
	OnPageLoad(ctx context.Context, page tab.Page) error
}

// Query is the search request an extractor receives.
type Query struct {
	Value string                 `json:"query"`
	Type  profile.IdentifierType `json:"identifierType"`
}

// Searcher is implemented by extractors for platforms that require driving
// an in-page search input instead of a query URL.
type Searcher interface {
	PerformSearch(ctx context.Context, page tab.Page, query string) error
}

// SearchResultsEvent is the payload of a searchResultsExtracted event.
type SearchResultsEvent struct {
	Platform platform.ID        `json:"platform"`
	Query    string             `json:"query"`
	Profiles []*profile.Profile `json:"profiles"`
}

// ProfileDataEvent is the payload of a profileDataExtracted event.
type ProfileDataEvent struct {
	Platform platform.ID      `json:"platform"`
	Profile  *profile.Profile `json:"profile"`
}

// AuthRequiredEvent is the payload of an authenticationRequired event.
type AuthRequiredEvent struct {
	Platform platform.ID `json:"platform"`
	LoginURL string      `json:"loginUrl"`
}

// Deps are the collaborators every extractor needs.
type Deps struct {
	Hub      *bus.Hub
	Detector *authdetect.Detector
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Factory builds an extractor from its collaborators.
type Factory func(deps Deps) Extractor

var (
	registryMu sync.RWMutex
	registry   = make(map[platform.ID]Factory)
)

// Register adds a platform extractor factory. Called from package init.
func Register(id platform.ID, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = factory
}

// New builds the registered extractor for id.
func New(id platform.ID, deps Deps) (Extractor, error) {
	registryMu.RLock()
	factory := registry[id]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: no extractor for %q", platform.ErrUnknownPlatform, id)
	}
	return factory(deps), nil
}

// Registered reports whether an extractor exists for id.
func Registered(id platform.ID) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[id]
	return ok
}

// Base carries the shared mechanics of a platform extractor: the auth gate,
// event emission, and search-result link harvesting. Platform packages embed
// it and supply their own parsers.
type Base struct {
	ID       platform.ID
	Desc     *platform.Descriptor
	Hub      *bus.Hub
	Detector *authdetect.Detector
	Logger   *slog.Logger
	// GateExtraction short-circuits extraction when not authenticated,
	// emitting authenticationRequired. Set for platforms that wall content.
	GateExtraction bool
}

// NewBase builds the shared extractor core for id. Panics on unknown id;
// platform packages only call it with their own constant.
func NewBase(id platform.ID, deps Deps, gated bool) Base {
	desc, err := platform.Lookup(id)
	if err != nil {
		panic(err)
	}
	return Base{
		ID:             id,
		Desc:           desc,
		Hub:            deps.Hub,
		Detector:       deps.Detector,
		Logger:         deps.logger(),
		GateExtraction: gated,
	}
}

// Platform returns the extractor's platform id.
func (b *Base) Platform() platform.ID { return b.ID }

// CheckAuthentication probes the page's login state.
func (b *Base) CheckAuthentication(ctx context.Context, page tab.Page) (*authdetect.Verdict, error) {
	return b.Detector.Detect(ctx, b.ID, page)
}

// Gate enforces the auth gate when configured. Returns ErrAuthRequired after
// emitting authenticationRequired if the session is not logged in.
func (b *Base) Gate(ctx context.Context, page tab.Page) error {
	if !b.GateExtraction {
		return nil
	}
	verdict, err := b.Detector.Detect(ctx, b.ID, page)
	if err != nil {
		return err
	}
	if verdict.Authenticated {
		return nil
	}
	b.Logger.InfoContext(ctx, "extraction blocked by auth gate", "platform", b.ID)
	b.Hub.Publish(bus.Event{
		Kind: bus.EventAuthRequired,
		Data: AuthRequiredEvent{Platform: b.ID, LoginURL: verdict.LoginURL},
	})
	return fmt.Errorf("%w: %s", profile.ErrAuthRequired, b.ID)
}

// EmitSearchResults publishes accepted search-result profiles.
func (b *Base) EmitSearchResults(ctx context.Context, query string, profiles []*profile.Profile) {
	accepted := make([]*profile.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.Identified() {
			accepted = append(accepted, p)
		}
	}
	b.Logger.InfoContext(ctx, "search results extracted",
		"platform", b.ID, "query", query, "count", len(accepted))
	b.Hub.Publish(bus.Event{
		Kind: bus.EventSearchResults,
		Data: SearchResultsEvent{Platform: b.ID, Query: query, Profiles: accepted},
	})
}

// EmitProfile publishes one extracted profile if it carries an identifying
// field; silently drops it otherwise.
func (b *Base) EmitProfile(ctx context.Context, p *profile.Profile) {
	if p == nil || !p.Identified() {
		b.Logger.DebugContext(ctx, "dropping unidentified profile", "platform", b.ID)
		return
	}
	b.Logger.InfoContext(ctx, "profile extracted",
		"platform", b.ID, "username", p.Username, "url", p.ProfileURL)
	b.Hub.Publish(bus.Event{
		Kind: bus.EventProfileData,
		Data: ProfileDataEvent{Platform: b.ID, Profile: p},
	})
}

// AutoExtract implements the common OnPageLoad behavior: gate, then extract
// according to what kind of page loaded.
func (b *Base) AutoExtract(ctx context.Context, page tab.Page,
	searchFn func(context.Context, tab.Page, Query) error,
	profileFn func(context.Context, tab.Page) error,
) error {
	url, err := page.URL(ctx)
	if err != nil {
		return err
	}
	switch {
	case b.Desc.IsSearchURL(url):
		return searchFn(ctx, page, Query{})
	case b.Desc.IsProfileURL(url):
		return profileFn(ctx, page)
	default:
		return nil
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var anchorPattern = regexp.MustCompile(`(?is)<a\b[^>]*\bhref\s*=\s*"([^"]+)"[^>]*>(.*?)</a>`)

// maxSearchResults caps how many candidates one listing page yields.
const maxSearchResults = 10

// HarvestSearchLinks scans listing HTML for profile links, producing at most
// maxSearchResults candidate records deduplicated by URL.
func (b *Base) HarvestSearchLinks(html string) []*profile.Profile {
	seen := make(map[string]bool)
	var out []*profile.Profile
	for _, m := range anchorPattern.FindAllStringSubmatch(html, -1) {
		href, inner := m[1], m[2]
		href = normalizeHref(href, b.Desc.RootURL)
		if href == "" || seen[href] || !b.Desc.IsProfileURL(href) {
			continue
		}
		name := strings.TrimSpace(htmlutil.StripTags(inner))
		p := &profile.Profile{
			Platform:    b.Desc.Name,
			PlatformKey: string(b.ID),
			Name:        name,
			ProfileURL:  href,
		}
		if img := firstImageSrc(inner); img != "" {
			p.ProfileImage = img
		}
		seen[href] = true
		out = append(out, p)
		if len(out) >= maxSearchResults {
			break
		}
	}
	return out
}

var imgSrcPattern = regexp.MustCompile(`(?i)<img\b[^>]*\bsrc\s*=\s*"([^"]+)"`)

func firstImageSrc(html string) string {
	if m := imgSrcPattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

func normalizeHref(href, root string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
		return ""
	case strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(root, "/") + href
	default:
		return ""
	}
}
