// Selector rule engine: each extracted field is an ordered list of rules and
// the first rule yielding a non-empty value wins.

package htmlutil

import (
	"regexp"
	"strings"
)

// Rule locates one candidate value in an HTML document. Selector is a
// simplified CSS selector (see Select); Attr names the attribute to read, or
// is empty to read the element's text content.
type Rule struct {
	Selector string
	Attr     string
}

// FirstMatch evaluates rules in order and returns the first non-empty value,
// trimmed and entity-decoded.
func FirstMatch(htmlContent string, rules []Rule) string {
	for _, r := range rules {
		if v := strings.TrimSpace(Select(htmlContent, r.Selector, r.Attr)); v != "" {
			return v
		}
	}
	return ""
}

// Select finds the first element matching a simplified selector and returns
// the named attribute, or the stripped inner text when attr is empty.
//
// Supported selector forms, matching how the platforms' markup is probed:
//
//	tag
//	#id
//	.class
//	tag.class
//	[attr="value"]  [attr*="value"]  [attr^="value"]
//	tag[attr="value"] and friends
func Select(htmlContent, selector, attr string) string {
	re := selectorPattern(selector)
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(htmlContent)
	if m == nil {
		return ""
	}
	tagMarkup := m[0]
	if attr != "" {
		return attrValue(tagMarkup, attr)
	}
	// Inner text: take everything from the opening tag to the matching close.
	start := strings.Index(htmlContent, tagMarkup)
	if start < 0 {
		return ""
	}
	rest := htmlContent[start+len(tagMarkup):]
	tag := tagName(tagMarkup)
	if tag == "" {
		return ""
	}
	end := strings.Index(strings.ToLower(rest), "</"+tag)
	if end < 0 {
		return ""
	}
	return StripTags(rest[:end])
}

// Has reports whether any element matches the selector.
func Has(htmlContent, selector string) bool {
	re := selectorPattern(selector)
	return re != nil && re.MatchString(htmlContent)
}

// HasAny reports whether any of the selectors matches.
func HasAny(htmlContent string, selectors []string) bool {
	for _, s := range selectors {
		if Has(htmlContent, s) {
			return true
		}
	}
	return false
}

// selectorPattern compiles a simplified selector to a regexp matching the
// opening tag of a candidate element.
func selectorPattern(selector string) *regexp.Regexp {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	tag := `[a-zA-Z][a-zA-Z0-9]*`
	var conds []string

	// Leading tag name, if any.
	rest := selector
	if i := strings.IndexAny(rest, "#.["); i != 0 {
		if i < 0 {
			tag = regexp.QuoteMeta(rest)
			rest = ""
		} else {
			tag = regexp.QuoteMeta(rest[:i])
			rest = rest[i:]
		}
	}

	for rest != "" {
		switch rest[0] {
		case '#':
			end := nextDelim(rest[1:])
			conds = append(conds, `id=["']`+regexp.QuoteMeta(rest[1:1+end])+`["']`)
			rest = rest[1+end:]
		case '.':
			end := nextDelim(rest[1:])
			conds = append(conds, `class=["'][^"']*`+regexp.QuoteMeta(rest[1:1+end])+`[^"']*["']`)
			rest = rest[1+end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil
			}
			cond := attrCondPattern(rest[1:end])
			if cond == "" {
				return nil
			}
			conds = append(conds, cond)
			rest = rest[end+1:]
		default:
			return nil
		}
	}

	pattern := `(?is)<` + tag
	for _, c := range conds {
		pattern += `[^>]*` + c
	}
	pattern += `[^>]*>`

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}

// attrCondPattern translates [attr="v"], [attr*="v"], [attr^="v"], [attr].
func attrCondPattern(cond string) string {
	op := ""
	eq := strings.IndexByte(cond, '=')
	if eq < 0 {
		return regexp.QuoteMeta(strings.TrimSpace(cond)) + `(?:=["'][^"']*["'])?`
	}
	name := strings.TrimSpace(cond[:eq])
	if strings.HasSuffix(name, "*") || strings.HasSuffix(name, "^") {
		op = name[len(name)-1:]
		name = name[:len(name)-1]
	}
	val := strings.Trim(strings.TrimSpace(cond[eq+1:]), `"'`)
	name = regexp.QuoteMeta(name)
	val = regexp.QuoteMeta(val)
	switch op {
	case "*":
		return name + `=["'][^"']*` + val + `[^"']*["']`
	case "^":
		return name + `=["']` + val + `[^"']*["']`
	default:
		return name + `=["']` + val + `["']`
	}
}

func nextDelim(s string) int {
	if i := strings.IndexAny(s, "#.["); i >= 0 {
		return i
	}
	return len(s)
}

var tagNamePattern = regexp.MustCompile(`(?i)^<([a-zA-Z][a-zA-Z0-9]*)`)

func tagName(markup string) string {
	if m := tagNamePattern.FindStringSubmatch(markup); len(m) > 1 {
		return strings.ToLower(m[1])
	}
	return ""
}

var attrValuePattern = `(?i)\s%s=["']([^"']*)["']`

func attrValue(markup, attr string) string {
	re, err := regexp.Compile(strings.Replace(attrValuePattern, "%s", regexp.QuoteMeta(attr), 1))
	if err != nil {
		return ""
	}
	if m := re.FindStringSubmatch(markup); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
