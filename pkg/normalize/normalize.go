// Package normalize cleans inbound enrichment records before validation.
// All functions are pure; callers decide which fields get which treatment.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	titleCaser = cases.Title(language.Und)
)

// Tracking query parameters stripped from URLs during normalization.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
}

// CleanText strips HTML tags, applies Unicode NFC, and collapses runs of
// whitespace to single spaces.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Email lower-cases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Domain lower-cases a bare domain and strips any scheme or trailing slash.
func Domain(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

// URL coerces a URL to https, lower-cases the host, removes tracking
// parameters and the fragment. Unparseable input is returned trimmed.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	return strings.TrimSuffix(u.String(), "/")
}

// Name cleans a personal or company name. All-lowercase input is
// title-cased; mixed-case input is preserved so acronyms survive.
func Name(s string) string {
	s = CleanText(s)
	if s != "" && s == strings.ToLower(s) {
		return titleCaser.String(s)
	}
	return s
}

// Keys that get specialized treatment in Record.
var (
	emailKeys  = map[string]bool{"email": true, "work_email": true, "personal_email": true}
	urlKeys    = map[string]bool{"website": true, "url": true, "linkedin_url": true}
	domainKeys = map[string]bool{"domain": true, "company_domain": true}
	nameKeys   = map[string]bool{"name": true, "full_name": true, "first_name": true, "last_name": true, "company": true, "company_name": true}
)

// Record returns a normalized copy of an input record. String values are
// cleaned per field name; non-string values pass through untouched.
func Record(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		switch {
		case emailKeys[k]:
			out[k] = Email(s)
		case urlKeys[k]:
			out[k] = URL(s)
		case domainKeys[k]:
			out[k] = Domain(s)
		case nameKeys[k]:
			out[k] = Name(s)
		default:
			out[k] = CleanText(s)
		}
	}
	return out
}
