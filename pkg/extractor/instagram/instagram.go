// Package instagram extracts profile data from Instagram pages. Instagram
// has no query-URL people search, so the extractor drives the in-page
// search input instead.
package instagram

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/htmlutil"
	"github.com/osintkit/deepscan/pkg/pii"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/tab"
)

func init() {
	extractor.Register(platform.Instagram, func(deps extractor.Deps) extractor.Extractor {
		return &Client{Base: extractor.NewBase(platform.Instagram, deps, true)}
	})
}

// Client extracts Instagram search and profile pages and implements
// interactive search.
type Client struct {
	extractor.Base
}

const (
	// searchInputTimeout bounds the wait for the search box to render.
	searchInputTimeout = 5 * time.Second
	// searchSettle lets suggestion results populate after typing.
	searchSettle = time.Second
)

var searchInputSelectors = []string{
	`input[placeholder*="Search"]`,
	`input[aria-label*="Search"]`,
}

var usernamePattern = regexp.MustCompile(`(?i)instagram\.com/([a-zA-Z0-9._]+)`)

// "1,234 Followers, 56 Following, 78 Posts" from the meta description.
var statsPattern = regexp.MustCompile(`(?i)([\d,.]+[KM]?)\s+Followers?,\s*([\d,.]+[KM]?)\s+Following,\s*([\d,.]+[KM]?)\s+Posts?`)

// ExtractSearchResults parses the search overlay for profile links.
func (c *Client) ExtractSearchResults(ctx context.Context, page tab.Page, query extractor.Query) error {
	if err := c.Gate(ctx, page); err != nil {
		return err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	c.EmitSearchResults(ctx, query.Value, c.HarvestSearchLinks(html))
	return nil
}

// PerformSearch drives the in-page search input: wait for the box, focus,
// type the query with synthetic events, let suggestions settle, extract.
func (c *Client) PerformSearch(ctx context.Context, page tab.Page, query string) error {
	if err := c.Gate(ctx, page); err != nil {
		return err
	}

	var selector string
	for _, s := range searchInputSelectors {
		if err := page.WaitVisible(ctx, s, searchInputTimeout); err == nil {
			selector = s
			break
		}
	}
	if selector == "" {
		return fmt.Errorf("%w: search input not found", profile.ErrExtraction)
	}

	if err := page.Click(ctx, selector); err != nil {
		return fmt.Errorf("focusing search input: %w", err)
	}
	if err := page.SetValue(ctx, selector, query); err != nil {
		return fmt.Errorf("typing search query: %w", err)
	}
	if err := extractor.Sleep(ctx, searchSettle); err != nil {
		return err
	}
	return c.ExtractSearchResults(ctx, page, extractor.Query{Value: query})
}

// ExtractProfileData parses a single profile page.
func (c *Client) ExtractProfileData(ctx context.Context, page tab.Page) error {
	if err := c.Gate(ctx, page); err != nil {
		return err
	}
	url, err := page.URL(ctx)
	if err != nil {
		return err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	c.EmitProfile(ctx, parseProfile(html, url))
	return nil
}

// OnPageLoad auto-extracts recognized search and profile pages.
func (c *Client) OnPageLoad(ctx context.Context, page tab.Page) error {
	return c.AutoExtract(ctx, page, c.ExtractSearchResults, c.ExtractProfileData)
}

func parseProfile(html, url string) *profile.Profile {
	desc, _ := platform.Lookup(platform.Instagram)
	p := &profile.Profile{
		Platform:    desc.Name,
		PlatformKey: string(platform.Instagram),
		ProfileURL:  url,
		Username:    extractUsername(url),
	}

	// og:title is "Full Name (@username) • Instagram photos and videos".
	title := htmlutil.OGTag(html, "og:title")
	if i := strings.Index(title, "(@"); i > 0 {
		p.Name = strings.TrimSpace(title[:i])
		if p.Username == "" {
			if j := strings.Index(title[i:], ")"); j > 0 {
				p.Username = title[i+2 : i+j]
			}
		}
	}

	metaDesc := htmlutil.MetaTag(html, "description")
	if metaDesc == "" {
		metaDesc = htmlutil.OGTag(html, "og:description")
	}
	if m := statsPattern.FindStringSubmatch(metaDesc); m != nil {
		p.Followers = htmlutil.CleanCount(m[1])
		p.Following = htmlutil.CleanCount(m[2])
		p.Posts = htmlutil.CleanCount(m[3])
	}
	// Bio follows the stats sentence, separated by a hyphen and quoted.
	if i := strings.Index(metaDesc, `: "`); i > 0 {
		p.Bio = strings.Trim(metaDesc[i+2:], `" `)
	}

	p.ProfileImage = htmlutil.OGTag(html, "og:image")
	p.IsVerified = htmlutil.AriaLabelContains(html, "Verified")
	p.IsPrivate = strings.Contains(html, "This account is private") ||
		strings.Contains(html, "This Account is Private")

	if bundle := pii.Extract(p.Bio); !bundle.Empty() {
		p.ExtractedPII = bundle
	}
	return p
}

func extractUsername(url string) string {
	m := usernamePattern.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	switch strings.ToLower(m[1]) {
	case "accounts", "explore", "reels", "direct", "stories", "p":
		return ""
	}
	return m[1]
}
