// Package htmlutil provides HTML processing utilities for page extractors:
// meta tag extraction, tag stripping, and a small ordered-rule engine for
// selector-based field extraction with fallbacks.
package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	multiSpacePattern = regexp.MustCompile(`\s+`)
	titlePattern      = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	ogTitlePattern    = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	descPattern       = regexp.MustCompile(`(?i)<meta[^>]+name=["']description["'][^>]+content=["']([^"']+)["']`)
	commaPattern      = regexp.MustCompile(`,`)
)

// StripTags removes HTML tags and returns collapsed plain text.
func StripTags(htmlContent string) string {
	if htmlContent == "" {
		return ""
	}
	content := tagPattern.ReplaceAllString(htmlContent, " ")
	content = html.UnescapeString(content)
	content = multiSpacePattern.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// Title extracts the page title, preferring <title> over og:title.
func Title(htmlContent string) string {
	if m := titlePattern.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	if m := ogTitlePattern.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}

// Description extracts the meta description.
func Description(htmlContent string) string {
	if m := descPattern.FindStringSubmatch(htmlContent); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return MetaTag(htmlContent, "og:description")
}

// MetaTag extracts a meta tag value by name or property, tolerating either
// attribute order.
func MetaTag(htmlContent, nameOrProperty string) string {
	q := regexp.QuoteMeta(nameOrProperty)
	patterns := []string{
		`(?i)<meta[^>]+name=["']` + q + `["'][^>]+content=["']([^"']+)["']`,
		`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+name=["']` + q + `["']`,
		`(?i)<meta[^>]+property=["']` + q + `["'][^>]+content=["']([^"']+)["']`,
		`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+property=["']` + q + `["']`,
	}
	for _, p := range patterns {
		if m := regexp.MustCompile(p).FindStringSubmatch(htmlContent); len(m) > 1 {
			return html.UnescapeString(strings.TrimSpace(m[1]))
		}
	}
	return ""
}

// OGTag extracts an Open Graph property value.
func OGTag(htmlContent, property string) string {
	return MetaTag(htmlContent, property)
}

// CleanCount normalizes a displayed count: commas stripped, K/M suffixes and
// decimal points preserved ("12,345" -> "12345", "1.2M" -> "1.2M").
func CleanCount(s string) string {
	return strings.TrimSpace(commaPattern.ReplaceAllString(s, ""))
}

// AriaLabelContains reports whether any element carries an aria-label whose
// value contains substr (case-insensitive). Verification badges on every
// supported platform are announced this way.
func AriaLabelContains(htmlContent, substr string) bool {
	re := regexp.MustCompile(`(?i)aria-label=["']([^"']*)["']`)
	needle := strings.ToLower(substr)
	for _, m := range re.FindAllStringSubmatch(htmlContent, -1) {
		if strings.Contains(strings.ToLower(m[1]), needle) {
			return true
		}
	}
	return false
}
