// Package linkedin extracts profile data from LinkedIn pages.
package linkedin

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
	extractor.Register(platform.LinkedIn, func(deps extractor.Deps) extractor.Extractor {
		return &Client{Base: extractor.NewBase(platform.LinkedIn, deps, false)}
	})
}

// Client extracts LinkedIn search and profile pages.
type Client struct {
	extractor.Base
}

var (
	usernamePattern    = regexp.MustCompile(`(?i)linkedin\.com/in/([a-zA-Z0-9\-_%]+)`)
	connectionsPattern = regexp.MustCompile(`(?i)([\d,.]+\+?[KM]?)\s+connections`)
	followersPattern   = regexp.MustCompile(`(?i)([\d,.]+\+?[KM]?)\s+followers`)
	degreePattern      = regexp.MustCompile(`(?i)\b([123])(?:st|nd|rd)\b(?:\s+degree)?`)
	// <li> bodies inside experience/education sections.
	listItemPattern = regexp.MustCompile(`(?is)<li\b[^>]*>(.*?)</li>`)
	sectionPattern  = regexp.MustCompile(`(?is)<section\b[^>]*>.*?</section>`)
)

var nameRules = []htmlutil.Rule{
	{Selector: `h1.text-heading-xlarge`},
	{Selector: `h1.top-card-layout__title`},
	{Selector: `h1`},
}

var headlineRules = []htmlutil.Rule{
	{Selector: `div.text-body-medium`},
	{Selector: `h2.top-card-layout__headline`},
	{Selector: `[data-section="headline"]`},
}

var locationRules = []htmlutil.Rule{
	{Selector: `span.text-body-small`},
	{Selector: `div.top-card__subline-item`},
	{Selector: `[data-section="location"]`},
}

var imageRules = []htmlutil.Rule{
	{Selector: `img.pv-top-card-profile-picture__image`, Attr: "src"},
	{Selector: `img.top-card-layout__entity-image`, Attr: "src"},
	{Selector: `img[alt*="profile photo"]`, Attr: "src"},
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
	desc, _ := platform.Lookup(platform.LinkedIn)
	p := &profile.Profile{
		Platform:    desc.Name,
		PlatformKey: string(platform.LinkedIn),
		ProfileURL:  url,
		Username:    extractUsername(url),
	}

	p.Name = htmlutil.FirstMatch(html, nameRules)
	if p.Name == "" {
		// og:title is "Name - Headline | LinkedIn".
		title := htmlutil.OGTag(html, "og:title")
		title = strings.TrimSuffix(title, " | LinkedIn")
		if i := strings.Index(title, " - "); i > 0 {
			p.Headline = strings.TrimSpace(title[i+3:])
			title = title[:i]
		}
		p.Name = strings.TrimSpace(title)
	}
	if p.Headline == "" {
		p.Headline = htmlutil.FirstMatch(html, headlineRules)
	}
	p.Location = htmlutil.FirstMatch(html, locationRules)
	p.ProfileImage = htmlutil.FirstMatch(html, imageRules)
	if p.ProfileImage == "" {
		p.ProfileImage = htmlutil.OGTag(html, "og:image")
	}

	text := htmlutil.StripTags(html)
	if m := connectionsPattern.FindStringSubmatch(text); m != nil {
		p.Connections = htmlutil.CleanCount(m[1])
	}
	if m := followersPattern.FindStringSubmatch(text); m != nil {
		p.Followers = htmlutil.CleanCount(m[1])
	}
	if m := degreePattern.FindStringSubmatch(text); m != nil {
		p.ConnectionDegree = m[0]
	}

	p.Experience = sectionItems(html, "experience")
	p.EducationLog = sectionItems(html, "education")
	if len(p.EducationLog) > 0 {
		p.Education = p.EducationLog[0]
	}

	if bundle := pii.Extract(p.Headline + " " + p.Location); !bundle.Empty() {
		p.ExtractedPII = bundle
	}
	return p
}

// sectionItems pulls the list entries from the section whose markup mentions
// the given anchor id (LinkedIn anchors sections with id="experience" etc.).
func sectionItems(html, anchor string) []string {
	for _, section := range sectionPattern.FindAllString(html, -1) {
		if !strings.Contains(section, `id="`+anchor+`"`) &&
			!strings.Contains(section, `data-section="`+anchor+`"`) {
			continue
		}
		var items []string
		for _, m := range listItemPattern.FindAllStringSubmatch(section, -1) {
			item := strings.TrimSpace(collapseSpace(htmlutil.StripTags(m[1])))
			if item != "" {
				items = append(items, item)
			}
			if len(items) >= 5 {
				break
			}
		}
		return items
	}
	return nil
}

var spacePattern = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return spacePattern.ReplaceAllString(s, " ")
}

func extractUsername(url string) string {
	if m := usernamePattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}
