// Package facebook extracts profile data from Facebook pages.
// Facebook walls most content behind login, so extraction is auth-gated.
package facebook

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
	extractor.Register(platform.Facebook, func(deps extractor.Deps) extractor.Extractor {
		return &Client{Base: extractor.NewBase(platform.Facebook, deps, true)}
	})
}

// Client extracts Facebook search and profile pages.
type Client struct {
	extractor.Base
}

var (
	usernamePattern = regexp.MustCompile(`(?i)facebook\.com/(?:people/[^/]+/)?([a-zA-Z0-9.]+)`)
	// "1,234 friends" in any casing.
	friendsPattern = regexp.MustCompile(`(?i)([\d,.]+[KM]?)\s+friends`)
	// "5 mutual friends".
	mutualPattern = regexp.MustCompile(`(?i)(\d[\d,]*)\s+mutual friends`)
	worksPattern  = regexp.MustCompile(`(?i)works at\s+([^<|•\n]+)`)
	studiedAtRe   = regexp.MustCompile(`(?i)(?:studied|studies) at\s+([^<|•\n]+)`)
	livesInRe     = regexp.MustCompile(`(?i)lives in\s+([^<|•\n]+)`)
)

var nameRules = []htmlutil.Rule{
	{Selector: `h1`},
	{Selector: `[data-testid="profile_name_in_profile_page"]`},
}

var imageRules = []htmlutil.Rule{
	{Selector: `image`, Attr: "xlink:href"},
	{Selector: `[data-imgperflogname="profileCoverPhoto"]`, Attr: "src"},
	{Selector: `img[alt*="profile photo"]`, Attr: "src"},
}

var bioRules = []htmlutil.Rule{
	{Selector: `[data-testid="profile_intro_card_bio"]`},
	{Selector: `div.profileIntroCard`},
}

// ExtractSearchResults parses a people-search listing into candidates.
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
	desc, _ := platform.Lookup(platform.Facebook)
	p := &profile.Profile{
		Platform:    desc.Name,
		PlatformKey: string(platform.Facebook),
		ProfileURL:  url,
		Username:    extractUsername(url),
	}

	p.Name = htmlutil.FirstMatch(html, nameRules)
	if p.Name == "" {
		p.Name = strings.TrimSuffix(htmlutil.OGTag(html, "og:title"), " | Facebook")
	}
	p.ProfileImage = htmlutil.FirstMatch(html, imageRules)
	if p.ProfileImage == "" {
		p.ProfileImage = htmlutil.OGTag(html, "og:image")
	}
	p.Bio = htmlutil.FirstMatch(html, bioRules)

	text := htmlutil.StripTags(html)
	if m := friendsPattern.FindStringSubmatch(text); m != nil {
		p.Friends = htmlutil.CleanCount(m[1])
	}
	if m := mutualPattern.FindStringSubmatch(text); m != nil {
		p.MutualFriends = htmlutil.CleanCount(m[1])
	}
	if m := worksPattern.FindStringSubmatch(html); m != nil {
		p.Workplace = strings.TrimSpace(m[1])
	}
	if m := studiedAtRe.FindStringSubmatch(html); m != nil {
		p.Education = strings.TrimSpace(m[1])
	}
	if m := livesInRe.FindStringSubmatch(html); m != nil {
		p.Location = strings.TrimSpace(m[1])
	}
	p.IsVerified = htmlutil.AriaLabelContains(html, "Verified")

	if bundle := pii.Extract(p.Bio + " " + p.Workplace + " " + p.Location); !bundle.Empty() {
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
	case "people", "profile.php", "search", "login":
		return ""
	}
	return m[1]
}
