package domain

import (
	"net/url"
	"strings"
)

// DefaultMaxCandidates is how many leading matches the retail filter looks at.
const DefaultMaxCandidates = 5

// DefaultRetailDomains is the allow-list used when none is configured.
var DefaultRetailDomains = []string{
	"amazon.in",
	"amazon.com",
	"flipkart.com",
	"myntra.com",
	"ajio.com",
	"meesho.com",
	"pepperfry.com",
	"ikea.com",
	"nykaa.com",
	"tatacliq.com",
}

// RetailFilter keeps only matches linking to known retail domains.
// When disabled every match is surfaced.
type RetailFilter struct {
	Enabled       bool
	Domains       []string
	MaxCandidates int
}

// Apply filters matches. Only the first MaxCandidates are considered when enabled.
func (f RetailFilter) Apply(matches []VisualMatch) []VisualMatch {
	if !f.Enabled {
		out := make([]VisualMatch, len(matches))
		copy(out, matches)
		return out
	}

	limit := f.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	if len(matches) < limit {
		limit = len(matches)
	}

	domains := f.Domains
	if len(domains) == 0 {
		domains = DefaultRetailDomains
	}

	out := make([]VisualMatch, 0, limit)
	for _, m := range matches[:limit] {
		if hostAllowed(m.Link, domains) {
			out = append(out, m)
		}
	}
	return out
}

// hostAllowed reports whether the link host equals an allowed domain or is a subdomain of one.
func hostAllowed(link string, domains []string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
