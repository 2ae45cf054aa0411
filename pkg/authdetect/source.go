// Cookie sources for authentication detection. The live tab snapshot is the
// primary evidence; these sources supply fallbacks when the tab has no
// cookies yet (fresh profile, cleared session).

package authdetect

import (
	"context"
	"log/slog"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register all browser cookie stores

	"github.com/osintkit/deepscan/pkg/platform"
)

// Source provides authentication cookies for a platform.
type Source interface {
	// Cookies returns cookies for the platform, or nil if unavailable.
	Cookies(ctx context.Context, id platform.ID) (map[string]string, error)
}

// StaticSource serves cookies from a fixed map. Useful for tests and for
// callers that obtained cookies elsewhere.
type StaticSource struct {
	cookies map[platform.ID]map[string]string
}

// NewStaticSource creates a static cookie source.
func NewStaticSource(cookies map[platform.ID]map[string]string) *StaticSource {
	return &StaticSource{cookies: cookies}
}

// Cookies returns a copy of the static cookies for id.
func (s *StaticSource) Cookies(_ context.Context, id platform.ID) (map[string]string, error) {
	src := s.cookies[id]
	if len(src) == 0 {
		return nil, nil //nolint:nilnil // empty source is not an error
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// BrowserSource reads session cookies from the local browser cookie stores.
type BrowserSource struct {
	logger *slog.Logger
}

// NewBrowserSource creates a browser cookie source.
func NewBrowserSource(logger *slog.Logger) *BrowserSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserSource{logger: logger}
}

// Cookies returns the platform's auth cookies found in any browser store.
// Failures to read a store are not errors; they just mean no evidence.
func (s *BrowserSource) Cookies(ctx context.Context, id platform.ID) (map[string]string, error) {
	desc, err := platform.Lookup(id)
	if err != nil {
		return nil, err
	}

	domain := desc.Hostnames[0]
	kookies, err := kooky.ReadCookies(ctx, kooky.Valid, kooky.DomainHasSuffix(domain))
	if err != nil {
		s.logger.Debug("browser cookie read failed", "platform", id, "error", err)
		return nil, nil //nolint:nilnil // unreadable store is not an error
	}
	if len(kookies) == 0 {
		return nil, nil //nolint:nilnil // no cookies is not an error
	}

	wanted := make(map[string]bool, len(desc.AuthCookies))
	for _, name := range desc.AuthCookies {
		wanted[name] = true
	}

	out := make(map[string]string)
	for _, c := range kookies {
		if wanted[c.Name] {
			out[c.Name] = c.Value
			s.logger.Debug("found auth cookie in browser store", "platform", id, "name", c.Name)
		}
	}
	return out, nil
}

// ChainSources returns cookies from the first source that has any.
func ChainSources(ctx context.Context, id platform.ID, sources ...Source) (map[string]string, error) {
	for _, src := range sources {
		cookies, err := src.Cookies(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(cookies) > 0 {
			return cookies, nil
		}
	}
	return nil, nil //nolint:nilnil // no source had cookies, which is a valid verdict input
}
