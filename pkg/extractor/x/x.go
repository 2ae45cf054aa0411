// Package x extracts profile data from X (Twitter) pages. Both x.com and
// twitter.com hostnames are recognized.
package x

import (
	"context"
	"regexp"
	"strings"

	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/htmlutil"
	"github.com/osintkit/deepscan/pkg/pii"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/tab"
)

func init() {
	extractor.Register(platform.X, func(deps extractor.Deps) extractor.Extractor {
		return &Client{Base: extractor.NewBase(platform.X, deps, false)}
	})
}

// Client extracts X search and profile pages.
type Client struct {
	extractor.Base
}

var (
	usernamePattern  = regexp.MustCompile(`(?i)(?:x|twitter)\.com/([a-zA-Z0-9_]+)`)
	followersPattern = regexp.MustCompile(`(?i)([\d,.]+[KM]?)\s+Followers`)
	followingPattern = regexp.MustCompile(`(?i)([\d,.]+[KM]?)\s+Following`)
	postsPattern     = regexp.MustCompile(`(?i)([\d,.]+[KM]?)\s+(?:posts|Tweets)`)
	joinedPattern    = regexp.MustCompile(`(?i)Joined\s+([A-Za-z]+\s+\d{4})`)
)

var nameRules = []htmlutil.Rule{
	{Selector: `[data-testid="UserName"]`},
}

var bioRules = []htmlutil.Rule{
	{Selector: `[data-testid="UserDescription"]`},
}

var locationRules = []htmlutil.Rule{
	{Selector: `[data-testid="UserLocation"]`},
}

var websiteRules = []htmlutil.Rule{
	{Selector: `[data-testid="UserUrl"]`},
}

var imageRules = []htmlutil.Rule{
	{Selector: `img[alt="Opens profile photo"]`, Attr: "src"},
	{Selector: `[data-testid="UserAvatar"] img`, Attr: "src"},
}

// ExtractSearchResults parses a people-search listing into candidates.
func (c *Client) ExtractSearchResults(ctx context.Context, page tab.Page, query extractor.Query) error {
	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}
	c.EmitSearchResults(ctx, query.Value, c.HarvestSearchLinks(html))
	return nil
}

// ExtractProfileData parses a single profile page.
func (c *Client) ExtractProfileData(ctx context.Context, page tab.Page) error {
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
	desc, _ := platform.Lookup(platform.X)
	p := &profile.Profile{
		Platform:    desc.Name,
		PlatformKey: string(platform.X),
		ProfileURL:  url,
		Username:    extractUsername(url),
	}

	// UserName block renders "Display Name @handle"; split on the @.
	nameBlock := htmlutil.FirstMatch(html, nameRules)
	if i := strings.Index(nameBlock, "@"); i >= 0 {
		p.Name = strings.TrimSpace(nameBlock[:i])
		if p.Username == "" {
			if fields := strings.Fields(nameBlock[i+1:]); len(fields) > 0 {
				p.Username = fields[0]
			}
		}
	} else {
		p.Name = strings.TrimSpace(nameBlock)
	}
	if p.Name == "" {
		// og:title is `Name (@handle) / X`.
		title := htmlutil.OGTag(html, "og:title")
		if i := strings.Index(title, "(@"); i > 0 {
			p.Name = strings.TrimSpace(title[:i])
		}
	}

	p.Bio = htmlutil.FirstMatch(html, bioRules)
	p.Location = htmlutil.FirstMatch(html, locationRules)
	p.Website = htmlutil.FirstMatch(html, websiteRules)
	p.ProfileImage = htmlutil.FirstMatch(html, imageRules)

	text := htmlutil.StripTags(html)
	if m := followersPattern.FindStringSubmatch(text); m != nil {
		p.Followers = htmlutil.CleanCount(m[1])
	}
	if m := followingPattern.FindStringSubmatch(text); m != nil {
		p.Following = htmlutil.CleanCount(m[1])
	}
	if m := postsPattern.FindStringSubmatch(text); m != nil {
		p.Tweets = htmlutil.CleanCount(m[1])
	}
	if m := joinedPattern.FindStringSubmatch(text); m != nil {
		p.JoinDate = m[1]
	}
	p.IsVerified = htmlutil.AriaLabelContains(html, "Verified account")
	p.IsPrivate = strings.Contains(text, "These posts are protected")

	if bundle := pii.Extract(p.Bio + " " + p.Website); !bundle.Empty() {
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
	case "search", "home", "explore", "i", "settings", "login", "notifications", "messages":
		return ""
	}
	return m[1]
}
