// Package pii extracts personally identifiable information from free text:
// email addresses, phone numbers, URLs, and @mentions.
package pii

import "regexp"

// Bundle holds the four extracted sets. Each is deduplicated and preserves
// first-occurrence order.
type Bundle struct {
	Emails   []string `json:"emails"`
	Phones   []string `json:"phones"`
	URLs     []string `json:"urls"`
	Mentions []string `json:"mentions"`
}

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	// Phone matching is biased toward Sri Lankan dialing plans (mobile then
	// fixed-line), falling back to generic E.164. Alternation order matters.
	phonePattern   = regexp.MustCompile(`(?:\+94|0)?7[0-9]{8}|(?:\+94|0)?[1-9][0-9]{7}|\+[1-9]\d{6,14}`)
	urlPattern     = regexp.MustCompile(`https?://[^\s<>"']+`)
	mentionPattern = regexp.MustCompile(`@[a-zA-Z0-9._]+`)
)

// Extract harvests PII from text. Empty input yields a bundle of four empty
// sets; Extract never fails.
func Extract(text string) *Bundle {
	return &Bundle{
		Emails:   unique(emailPattern.FindAllString(text, -1)),
		Phones:   unique(phonePattern.FindAllString(text, -1)),
		URLs:     unique(urlPattern.FindAllString(text, -1)),
		Mentions: unique(mentionPattern.FindAllString(text, -1)),
	}
}

// Empty reports whether no PII was found.
func (b *Bundle) Empty() bool {
	return b == nil ||
		(len(b.Emails) == 0 && len(b.Phones) == 0 && len(b.URLs) == 0 && len(b.Mentions) == 0)
}

func unique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
